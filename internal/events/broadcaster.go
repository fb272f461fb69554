package events

import (
	"context"
	"sync"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/metrics"
)

const subscriberBuffer = 32

type subscriber struct {
	record string
	ch     chan *domain.BurnEvent
}

// Broadcaster delivers events to in-process subscribers, keyed by burn
// record. Slow subscribers lose events rather than block the executor.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe returns a channel of events for recordID (all records when
// empty) and a function that ends the subscription.
func (b *Broadcaster) Subscribe(recordID string) (<-chan *domain.BurnEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *domain.BurnEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{record: recordID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Emit(_ context.Context, event *domain.BurnEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.record != "" && s.record != event.RecordID {
			continue
		}
		select {
		case s.ch <- event:
			metrics.EventsPublished.WithLabelValues("ws", string(event.Type), "ok").Inc()
		default:
			metrics.EventsPublished.WithLabelValues("ws", string(event.Type), "dropped").Inc()
		}
	}
	return nil
}

// Close ends every subscription.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	b.closed = true
	return nil
}
