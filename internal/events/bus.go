package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gql-dashboard/internal/logging"
)

// Listener receives events. Listeners run on the publisher's goroutine and
// must not block.
type Listener interface {
	Handle(e Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(e Event)

// Handle calls f(e)
func (f ListenerFunc) Handle(e Event) { f(e) }

// SubscriptionID identifies a registered listener
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	kinds    map[Kind]struct{}
	listener Listener
}

func (s *subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// DispatcherStats counts dispatcher activity
type DispatcherStats struct {
	Published      int64 `json:"published"`
	Delivered      int64 `json:"delivered"`
	ListenerPanics int64 `json:"listener_panics"`
	Subscriptions  int   `json:"subscriptions"`
}

// Dispatcher is an explicit observer list. Publish delivers synchronously,
// in subscription order, outside the dispatcher's lock so listeners may
// subscribe or unsubscribe while handling.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID SubscriptionID
	logger logging.Logger

	published atomic.Int64
	delivered atomic.Int64
	panics    atomic.Int64
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Dispatcher{logger: logger.WithComponent("events")}
}

// Subscribe registers a listener for the given kinds; no kinds means all
func (d *Dispatcher) Subscribe(l Listener, kinds ...Kind) SubscriptionID {
	sub := &subscription{listener: l}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub.id = d.nextID
	d.subs = append(d.subs, sub)
	return sub.id
}

// SubscribeFunc registers a function listener
func (d *Dispatcher) SubscribeFunc(fn func(Event), kinds ...Kind) SubscriptionID {
	return d.Subscribe(ListenerFunc(fn), kinds...)
}

// Unsubscribe removes a listener; it reports whether the id was registered
func (d *Dispatcher) Unsubscribe(id SubscriptionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, sub := range d.subs {
		if sub.id == id {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers e to every matching listener before returning
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	targets := make([]*subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		if sub.wants(e.Kind()) {
			targets = append(targets, sub)
		}
	}
	d.mu.RUnlock()

	d.published.Add(1)
	for _, sub := range targets {
		d.deliver(sub, e)
	}
}

func (d *Dispatcher) deliver(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("Event listener panicked",
				"subscription_id", uint64(sub.id),
				"kind", string(e.Kind()),
				"panic", fmt.Sprint(r))
		}
	}()
	sub.listener.Handle(e)
	d.delivered.Add(1)
}

// Stats returns a snapshot of dispatcher counters
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	n := len(d.subs)
	d.mu.RUnlock()

	return DispatcherStats{
		Published:      d.published.Load(),
		Delivered:      d.delivered.Load(),
		ListenerPanics: d.panics.Load(),
		Subscriptions:  n,
	}
}
