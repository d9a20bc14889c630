package events

import (
	"sync"

	"go.uber.org/atomic"
)

// InProcBus is a process-local Bus: a mutex-guarded fan-out map. Handlers run
// on their own goroutines so a slow subscriber never backs up a writer.
type InProcBus struct {
	mu     sync.RWMutex
	nextID *atomic.Uint64
	subs   map[string]map[uint64]func(Event)
}

func NewInProcBus() *InProcBus {
	return &InProcBus{
		nextID: atomic.NewUint64(0),
		subs:   map[string]map[uint64]func(Event){},
	}
}

func (b *InProcBus) Publish(topic string, e Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		go fn(e)
	}
	return nil
}

func (b *InProcBus) Subscribe(topic string, fn func(Event)) (func(), error) {
	id := b.nextID.Inc()

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[uint64]func(Event){}
	}
	b.subs[topic][id] = fn
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()
	}
	return unsubscribe, nil
}
