package dispatch

import "sync"

// Listeners is an ordered registry of subscribers.
type Listeners[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id       uint64
	listener T
}

// Add registers a listener and returns the function that removes it.
func (l *Listeners[T]) Add(listener T) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry[T]{id: id, listener: listener})

	return func() { l.remove(id) }
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// Each calls fn for every listener in registration order. Listeners added or
// removed by fn take effect on the next call.
func (l *Listeners[T]) Each(fn func(T)) {
	l.mu.Lock()
	snapshot := make([]T, len(l.entries))
	for i, entry := range l.entries {
		snapshot[i] = entry.listener
	}
	l.mu.Unlock()

	for _, listener := range snapshot {
		fn(listener)
	}
}

func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
