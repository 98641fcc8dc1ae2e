package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/scanauth/pkg/logger"
)

const subscriberBuffer = 32

// broker fans events out to subscribers. A full subscriber drops the event,
// except SIGNED_OUT, which evicts the oldest buffered event instead.
type broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
	logger *slog.Logger
}

func newBroker(l *slog.Logger) *broker {
	return &broker{subs: make(map[int]chan Event), logger: l}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broker) publish(ctx context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
			continue
		default:
		}

		if e.Type != EventSignedOut {
			b.logger.WarnContext(ctx, "identity event dropped, subscriber is full",
				logger.Component("identity"),
				logger.Event(string(e.Type)),
			)
			continue
		}

		// Only publish sends, so evicting one buffered event frees a slot.
		select {
		case old := <-ch:
			b.logger.WarnContext(ctx, "identity event evicted for sign-out, subscriber is full",
				logger.Component("identity"),
				logger.Event(string(old.Type)),
			)
		default:
		}
		ch <- e
	}
}

func (b *broker) close() {
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
