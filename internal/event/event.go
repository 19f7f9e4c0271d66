// Package event provides a small in-process publish/subscribe list.
package event

import (
	"fmt"
	"sync"
)

// Event is an ordered list of handlers for values of type T.
// The zero value is ready to use.
type Event[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []subscription[T]

	// OnPanic receives recovered handler panics. Nil discards them.
	OnPanic func(err error)
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe adds fn to the end of the handler list and returns a function
// that removes it. Calling the returned function more than once is a no-op.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, subscription[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Event[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.handlers {
		if s.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every handler in subscription order on the caller's goroutine.
// A panicking handler does not prevent later handlers from running.
func (e *Event[T]) Emit(v T) {
	e.mu.RLock()
	handlers := e.handlers
	onPanic := e.OnPanic
	e.mu.RUnlock()

	for _, s := range handlers {
		e.call(s.fn, v, onPanic)
	}
}

func (e *Event[T]) call(fn func(T), v T, onPanic func(error)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(fmt.Errorf("event handler panic: %v", r))
		}
	}()
	fn(v)
}

// Len returns the number of subscribed handlers.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}
