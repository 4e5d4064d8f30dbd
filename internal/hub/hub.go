// Package hub fans session notifications out to ordered observers.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind names a notification channel.
type Kind string

const (
	KindReady      Kind = "ready"
	KindLike       Kind = "like"
	KindDismiss    Kind = "dismiss"
	KindSignal     Kind = "signal"
	KindDisconnect Kind = "disconnect"
)

// Kinds lists every notification channel in a stable order.
func Kinds() []Kind {
	return []Kind{KindReady, KindLike, KindDismiss, KindSignal, KindDisconnect}
}

// AckFunc echoes a signal strength back to the device.
type AckFunc func(strength int) error

// Notification is delivered identically to every observer of a kind.
//
// Err is set for failed ready and signal notifications. Strength and Ack are
// only meaningful for a successful signal notification.
type Notification struct {
	Kind     Kind
	Session  string
	At       time.Time
	Err      error
	Strength int
	Ack      AckFunc
}

// Observer receives notifications.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(n Notification)

func (f ObserverFunc) Notify(n Notification) {
	f(n)
}

// Hub keeps observers per kind in registration order.
type Hub struct {
	mu        sync.RWMutex
	observers map[Kind][]Observer
	logger    zerolog.Logger
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		observers: make(map[Kind][]Observer),
		logger:    logger,
	}
}

// On appends o to the observers of kind.
func (h *Hub) On(kind Kind, o Observer) {
	if o == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers[kind] = append(h.observers[kind], o)
}

// Trigger calls every observer of kind, in order, with n. A panicking
// observer is logged and skipped; later observers still run. Observers added
// while a Trigger is in flight are first called on the next Trigger.
func (h *Hub) Trigger(kind Kind, n Notification) {
	n.Kind = kind
	h.mu.RLock()
	list := h.observers[kind]
	snapshot := make([]Observer, len(list))
	copy(snapshot, list)
	h.mu.RUnlock()

	for i, o := range snapshot {
		h.dispatch(kind, i, o, n)
	}
}

// Len returns the number of observers registered for kind.
func (h *Hub) Len(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers[kind])
}

func (h *Hub) dispatch(kind Kind, idx int, o Observer, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().
				Str("kind", string(kind)).
				Int("observer", idx).
				Interface("panic", r).
				Msg("observer panicked")
		}
	}()
	o.Notify(n)
}
