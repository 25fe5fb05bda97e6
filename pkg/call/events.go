package call

import "sync"

// broadcaster fans events out to any number of subscribers. Slow
// subscribers are skipped rather than blocking the session: consumers are
// expected to keep up with human-speech-rate event volume.
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]chan T)}
}

// subscribe registers a new consumer. The returned cancel function removes
// the subscription; the channel is closed on cancel or broadcaster close.
func (b *broadcaster[T]) subscribe(buf int) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, buf)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers v to every subscriber with room in its buffer.
func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// close shuts all subscriber channels. Subsequent publishes are dropped and
// subsequent subscribes return a closed channel.
func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
