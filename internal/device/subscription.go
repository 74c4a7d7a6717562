package device

import "sync/atomic"

// DefaultSubscriptionBuffer is used when Subscribe is called with a
// non-positive buffer size.
const DefaultSubscriptionBuffer = 64

// Subscription receives Registry changes.
//
// Delivery is non-blocking: if C is full when a change is emitted the
// change is dropped for this subscriber and counted in Dropped. Consumers
// that must not miss changes (the tray presenter) resynchronise from
// Registry.List on every receive, so a drop only delays a redraw.
type Subscription struct {
	// C delivers changes in emission order. It is closed by Close or when
	// the Registry is closed.
	C <-chan Change

	ch       chan Change
	registry *Registry
	dropped  atomic.Uint64
}

// Dropped returns the number of changes dropped because C was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	r := s.registry
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if _, ok := r.subs[s]; !ok {
		return
	}
	delete(r.subs, s)
	close(s.ch)
}

// Subscribe registers a new change subscriber with the given buffer size.
// Subscribing to a closed Registry returns a Subscription whose channel is
// already closed.
func (r *Registry) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}

	ch := make(chan Change, buffer)
	sub := &Subscription{C: ch, ch: ch, registry: r}

	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		close(ch)
		return sub
	}
	r.subs[sub] = struct{}{}
	return sub
}

// emit delivers change to every subscriber without blocking.
// Caller holds writeMu, which keeps delivery in mutation order.
func (r *Registry) emit(change Change) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	if r.closed {
		return
	}

	for sub := range r.subs {
		select {
		case sub.ch <- change:
		default:
			n := sub.dropped.Add(1)
			r.logger.Warn("registry subscriber full, change dropped",
				"address", change.Device.Address,
				"change", change.Kind,
				"dropped_total", n,
			)
		}
	}
}

// Close tears the Registry down: all subscriptions are closed and further
// mutations are no longer announced.
func (r *Registry) Close() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for sub := range r.subs {
		close(sub.ch)
		delete(r.subs, sub)
	}
}
