package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/jacobsoderblom/krypin/internal/metrics"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("bus: closed")

// InMemory is the in-process bus: a broadcast over per-subscription
// buffered channels. Publish matches the topic against each
// subscription's pattern and enqueues only on the matching ones.
type InMemory struct {
	mu      sync.Mutex
	subs    map[*subscription]struct{}
	closed  bool
	queue   int
	metrics *metrics.Metrics
}

type subscription struct {
	pattern string
	ch      chan Message
	cancel  context.CancelFunc
}

// NewInMemory creates an in-process bus with the default queue size.
// metrics may be nil.
func NewInMemory(m *metrics.Metrics) *InMemory {
	return NewInMemorySized(m, DefaultQueueSize)
}

// NewInMemorySized creates an in-process bus with a custom
// per-subscription queue size. Small sizes are useful in tests that
// exercise overflow behavior.
func NewInMemorySized(m *metrics.Metrics, queue int) *InMemory {
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	return &InMemory{
		subs:    make(map[*subscription]struct{}),
		queue:   queue,
		metrics: m,
	}
}

// Publish delivers payload to every matching subscription. The
// publisher never blocks: a subscription whose queue is full loses its
// oldest queued message to make room.
func (b *InMemory) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.metrics.BusPublished()
	msg := Message{Topic: topic, Payload: payload}
	for s := range b.subs {
		if !TopicMatches(s.pattern, topic) {
			continue
		}
		b.deliver(s, msg)
	}
	return nil
}

// deliver enqueues msg on s, evicting the oldest queued message when
// the queue is full. Called with b.mu held, which keeps per-subscription
// delivery in publish order.
func (b *InMemory) deliver(s *subscription, msg Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}
	// Queue full: drop the oldest entry. The consumer may race us for
	// it; either way a slot opens.
	select {
	case <-s.ch:
		b.metrics.BusDropped()
	default:
	}
	select {
	case s.ch <- msg:
	default:
		b.metrics.BusDropped()
	}
}

// Subscribe registers a new subscription for pattern. The returned
// channel closes when ctx is cancelled or the bus is closed.
func (b *InMemory) Subscribe(ctx context.Context, pattern string) (<-chan Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		pattern: pattern,
		ch:      make(chan Message, b.queue),
		cancel:  cancel,
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-subCtx.Done()
		b.remove(s)
	}()

	return s.ch, nil
}

func (b *InMemory) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Close shuts the bus down. Any publish already holding the lock
// completes first; subsequent publishes fail with ErrClosed.
func (b *InMemory) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		close(s.ch)
	}
	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (b *InMemory) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
