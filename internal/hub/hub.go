package hub

import (
	"dagsync/internal/logger"
	"dagsync/types"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Observer is anything that reflects job state and must hear about changes
// made by other observers.
type Observer interface {
	ID() string
	HandleEvent(evt types.Event)
}

// NotificationHub relays job events between observers of one process.
// Delivery is synchronous and at most once per observer per Publish.
type NotificationHub struct {
	instance string
	log      *logger.Logger

	mu        sync.RWMutex
	observers []Observer
}

func NewNotificationHub(instance string, log *logger.Logger) *NotificationHub {
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationHub{
		instance: instance,
		log:      log.With("component", "hub"),
	}
}

// Instance is the origin stamped on events published through this hub.
func (h *NotificationHub) Instance() string {
	return h.instance
}

// Register adds an observer. Registering the same id twice is an error.
func (h *NotificationHub) Register(o Observer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, existing := range h.observers {
		if existing.ID() == o.ID() {
			return fmt.Errorf("observer %s already registered", o.ID())
		}
	}
	h.observers = append(h.observers, o)
	return nil
}

// Deregister removes an observer; unknown observers are ignored.
func (h *NotificationHub) Deregister(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, existing := range h.observers {
		if existing.ID() == o.ID() {
			h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
			return
		}
	}
}

func (h *NotificationHub) Observers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Publish delivers evt to every registered observer except source, in
// registration order, before returning. source may be nil.
func (h *NotificationHub) Publish(evt types.Event, source Observer) types.Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Origin == "" {
		evt.Origin = h.instance
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	h.mu.RLock()
	targets := make([]Observer, len(h.observers))
	copy(targets, h.observers)
	h.mu.RUnlock()

	sourceID := ""
	if source != nil {
		sourceID = source.ID()
	}

	delivered := 0
	for _, o := range targets {
		if o.ID() == sourceID {
			continue
		}
		h.deliver(o, evt)
		delivered++
	}
	h.log.Debug("event published", "kind", evt.Kind.String(), "job_id", evt.JobID, "run_id", evt.RunID, "delivered", delivered)
	return evt
}

func (h *NotificationHub) deliver(o Observer, evt types.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic in event handler", "observer", o.ID(), "kind", evt.Kind.String(), "panic", r)
		}
	}()
	o.HandleEvent(evt)
}
