// Package observer provides a handle-based subscriber registry used to push
// snapshots (queue status, notifications) to listeners.
package observer

import (
	"log/slog"
	"sync"
)

// Registry delivers values of type T to subscribers in registration order.
// Subscribers are tracked by an opaque handle, so removing one never affects
// another that happens to share the same callback value.
type Registry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	order  []uint64
	subs   map[uint64]func(T)
	logger *slog.Logger
}

// New creates an empty registry. The logger receives recovered subscriber
// panics.
func New[T any](logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{
		subs:   make(map[uint64]func(T)),
		logger: logger,
	}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is idempotent. Every Notify that starts after
// unsubscribe returns skips fn, as does the remainder of a Notify already
// in progress. A call to fn that another goroutine has already begun is not
// interrupted; unsubscribe does not wait for it so that fn may unsubscribe
// itself.
func (r *Registry[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = fn
	r.order = append(r.order, id)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

// Notify calls every current subscriber with v. A subscriber removed while a
// delivery is in progress is skipped for the rest of that delivery. Panics
// are recovered and logged.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	ids := make([]uint64, len(r.order))
	copy(ids, r.order)
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		fn, ok := r.subs[id]
		r.mu.Unlock()
		if !ok {
			continue
		}
		r.deliver(id, fn, v)
	}
}

// Len returns the number of active subscribers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry[T]) deliver(id uint64, fn func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panicked",
				"subscription_id", id,
				"panic", rec)
		}
	}()
	fn(v)
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
