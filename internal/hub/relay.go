package hub

import (
	"context"
	"dagsync/internal/logger"
	"dagsync/internal/message_broaker"
	"dagsync/types"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Relay bridges a hub to other processes through a message broker. It is
// registered as an ordinary observer: local events go out on the broker,
// remote events are published into the hub with the relay as source so they
// are never sent back out.
type Relay struct {
	id     string
	hub    *NotificationHub
	broker message_broaker.MessageBroker
	topic  string
	log    *logger.Logger
}

func NewRelay(h *NotificationHub, broker message_broaker.MessageBroker, topic string, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{
		id:     "relay-" + uuid.NewString(),
		hub:    h,
		broker: broker,
		topic:  topic,
		log:    log.With("component", "relay", "topic", topic),
	}
}

func (r *Relay) ID() string {
	return r.id
}

// HandleEvent forwards locally originated events. Failures are logged only:
// the hub gives no delivery guarantee across processes either.
func (r *Relay) HandleEvent(evt types.Event) {
	if evt.Origin != r.hub.Instance() {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		r.log.Warn("cannot encode event", "error", err)
		return
	}
	if err := r.broker.Publish(r.topic, payload); err != nil {
		r.log.Warn("cannot relay event", "kind", evt.Kind.String(), "job_id", evt.JobID, "error", err)
	}
}

// Start registers the relay and consumes remote events until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	msgs, err := r.broker.Consume(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.topic, err)
	}
	if err := r.hub.Register(r); err != nil {
		return err
	}

	go func() {
		defer r.hub.Deregister(r)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-msgs:
				if !ok {
					return
				}
				r.receive(raw)
			}
		}
	}()
	return nil
}

func (r *Relay) receive(raw []byte) {
	var evt types.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		r.log.Warn("bad relayed payload", "error", err)
		return
	}
	// our own broadcasts come back on fanout brokers
	if evt.Origin == r.hub.Instance() || evt.Origin == "" {
		return
	}
	r.hub.Publish(evt, r)
}
