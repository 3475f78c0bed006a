package pubsub

import "sync"

// Subscription is a handle returned by Topic.Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe detaches the listener. Once it returns, no delivery that starts
// afterwards will reach the listener. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Topic is a set of listeners for values of type T.
// The zero value is ready to use.
type Topic[T any] struct {
	mu        sync.Mutex
	next      uint64
	listeners []listener[T]
}

// Subscribe registers fn and returns a handle used to remove it.
func (t *Topic[T]) Subscribe(fn func(T)) *Subscription {
	t.mu.Lock()
	t.next++
	id := t.next
	// Copy on write so Publish can iterate a snapshot without holding the lock.
	listeners := make([]listener[T], len(t.listeners), len(t.listeners)+1)
	copy(listeners, t.listeners)
	t.listeners = append(listeners, listener[T]{id: id, fn: fn})
	t.mu.Unlock()

	return &Subscription{cancel: func() { t.remove(id) }}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	listeners := make([]listener[T], 0, len(t.listeners))
	for _, l := range t.listeners {
		if l.id != id {
			listeners = append(listeners, l)
		}
	}
	t.listeners = listeners
}

// Publish calls every current listener with v, in subscription order.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	listeners := t.listeners
	t.mu.Unlock()

	for _, l := range listeners {
		l.fn(v)
	}
}

// Len returns the number of current listeners.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
