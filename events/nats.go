package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/mbolis/formpipe/log"
)

// NatsBus carries events over a NATS connection, so multiple server
// instances can share one notification channel.
type NatsBus struct {
	conn *nats.Conn
}

func ConnectNats(url string) (*NatsBus, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to NATS at %s", url)
	}
	return &NatsBus{conn: conn}, nil
}

func (b *NatsBus) Publish(topic string, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "events.marshal")
	}
	return b.conn.Publish(topic, data)
}

func (b *NatsBus) Subscribe(topic string, fn func(Event)) (func(), error) {
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		e := Event{}
		err := json.Unmarshal(msg.Data, &e)
		if err != nil {
			log.Debugf("events.parse: %s", err)
			return
		}
		fn(e)
	})
	if err != nil {
		return nil, err
	}
	return func() { sub.Unsubscribe() }, nil
}

func (b *NatsBus) Close() {
	b.conn.Close()
}
