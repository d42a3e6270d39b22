package store

import "sync"

// Feed decouples a publisher from a slow subscriber. Each event carries the
// full value of the subscribed path, so when the subscriber falls behind only
// the newest event is kept; order is preserved and the publisher never blocks.
type Feed struct {
	path    string
	out     chan Event
	wake    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	pending *Event
	closed  bool
}

// NewFeed starts a feed for path.
func NewFeed(path string) *Feed {
	f := &Feed{
		path: path,
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go f.run()
	return f
}

// Path returns the subscribed path.
func (f *Feed) Path() string {
	return f.path
}

// Done is closed once the feed stops.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Publish queues value, replacing any event not yet delivered.
func (f *Feed) Publish(value any) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.pending = &Event{Path: f.path, Value: value}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Close stops the feed and closes its channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
}

// Subscription exposes the feed; cancel runs before the feed closes.
func (f *Feed) Subscription(cancel func()) *Subscription {
	return NewSubscription(f.out, func() {
		if cancel != nil {
			cancel()
		}
		f.Close()
	})
}

func (f *Feed) run() {
	defer close(f.out)
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		ev := f.pending
		f.pending = nil
		f.mu.Unlock()
		if ev == nil {
			continue
		}

		select {
		case f.out <- *ev:
		case <-f.done:
			return
		}
	}
}
