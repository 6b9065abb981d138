package dispatch

import "sync"

// EventLoop runs posted functions one at a time, in posting order, on a
// single goroutine. Everything the realtime core hands to application code
// goes through one of these, so consumers never see two callbacks interleave.
type EventLoop struct {
	mu      sync.Mutex
	pending []func()
	wakeup  chan struct{}
	done    chan struct{}
	stopped bool
	stop    sync.Once
}

func CreateEventLoop() *EventLoop {
	loop := &EventLoop{
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go loop.run()
	return loop
}

// Post never blocks. Work posted after Stop is discarded.
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// Wait blocks until everything posted before the call has run.
// It must not be called from inside the loop.
func (l *EventLoop) Wait() {
	flushed := make(chan struct{})
	l.Post(func() { close(flushed) })

	select {
	case <-flushed:
	case <-l.done:
	}
}

func (l *EventLoop) Stop() {
	l.stop.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *EventLoop) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wakeup:
		}

		for {
			l.mu.Lock()
			if l.stopped || len(l.pending) == 0 {
				l.pending = nil
				l.mu.Unlock()
				break
			}
			fn := l.pending[0]
			l.pending[0] = nil
			l.pending = l.pending[1:]
			l.mu.Unlock()

			fn()
		}
	}
}
