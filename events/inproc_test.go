package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInProcBusDelivers(t *testing.T) {
	bus := NewInProcBus()

	received := make(chan Event, 1)
	unsubscribe, err := bus.Subscribe(Topic(1), func(e Event) { received <- e })
	require.NoError(t, err)
	defer unsubscribe()

	event := Event{Type: ResponseCreated, PipelineID: 1, OwnerID: 7, ResponseID: 42}
	require.NoError(t, bus.Publish(Topic(1), event))

	select {
	case got := <-received:
		require.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestInProcBusTopicIsolation(t *testing.T) {
	bus := NewInProcBus()

	received := make(chan Event, 1)
	unsubscribe, err := bus.Subscribe(Topic(1), func(e Event) { received <- e })
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, bus.Publish(Topic(2), Event{Type: ResponseCreated, PipelineID: 2}))

	select {
	case <-received:
		t.Fatal("event leaked across topics")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInProcBusUnsubscribe(t *testing.T) {
	bus := NewInProcBus()

	received := make(chan Event, 1)
	unsubscribe, err := bus.Subscribe(Topic(1), func(e Event) { received <- e })
	require.NoError(t, err)
	unsubscribe()

	require.NoError(t, bus.Publish(Topic(1), Event{Type: ResponseUpdated, PipelineID: 1}))

	select {
	case <-received:
		t.Fatal("unsubscribed handler still invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventMessages(t *testing.T) {
	require.Equal(t, "A new response submitted", ResponseCreated.Message())
	require.Equal(t, "A response updated", ResponseUpdated.Message())
}
