package store

import (
	"sync"

	"aide/internal/logging"
)

// subscription pumps change events to one handler on its own goroutine so a
// slow handler never blocks the mutating call.
type subscription struct {
	ownerID   string
	events    chan ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

// shutdown stops the pump and waits for it to drain. Safe to call from both
// the cancel func and closeAll in either order.
func (sub *subscription) shutdown() {
	sub.closeOnce.Do(func() {
		close(sub.events)
		<-sub.done
	})
}

// subscriberSet fans change events out to registered subscriptions.
// Shared by both store implementations.
type subscriberSet struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{subs: make(map[*subscription]struct{})}
}

// add registers a handler and returns its cancel function.
func (s *subscriberSet) add(ownerID string, handler func(ChangeEvent)) func() {
	sub := &subscription{
		ownerID: ownerID,
		events:  make(chan ChangeEvent, 64),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(sub.done)
		for ev := range sub.events {
			handler(ev)
		}
	}()

	return func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		sub.shutdown()
	}
}

// publish delivers the event to every subscription for the owner.
func (s *subscriberSet) publish(ownerID string, ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.ownerID != ownerID {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			// A subscriber this far behind has bigger problems; drop
			// rather than stall the mutation path.
			logging.Get(logging.CategoryStore).Warn("dropping %s event for slow subscriber", ev.Type)
		}
	}
}

// closeAll cancels every subscription (store shutdown).
func (s *subscriberSet) closeAll() {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscription]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}
