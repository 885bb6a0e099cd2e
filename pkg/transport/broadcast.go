package transport

import "sync"

// Broadcaster fans lines out to subscribers. Every subscriber sees every
// line published after it subscribed, in publish order.
type Broadcaster struct {
	pubMu sync.Mutex // serializes Publish and Close

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch   chan Line
	done chan struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned function unsubscribes; it is safe to call more than once. The
// channel is closed when the Broadcaster is closed.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Line, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{
		ch:   make(chan Line, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.done)
		})
	}
}

// Publish delivers line to every current subscriber. It blocks while a
// subscriber's buffer is full, until the subscriber drains or unsubscribes.
func (b *Broadcaster) Publish(line Line) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*subscriber, 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		if s, ok := b.subs[id]; ok {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- line:
		case <-s.done:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive an
// already-closed channel.
func (b *Broadcaster) Close() {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
