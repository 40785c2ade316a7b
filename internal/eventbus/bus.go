// Package eventbus carries in-process signals between loosely coupled parts
// of the console, such as broadcast progress flowing back to the operator's
// status surface.
package eventbus

import (
	"sync"
	"time"
)

// Event is one published signal. Data carries a payload struct named by Type.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans published events out to every current subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the event, so consumers
// size their buffers for the worst burst they expect.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory Bus. It owns no goroutines.
func New() Bus {
	return &fanout{subs: map[int]chan Event{}}
}

type fanout struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		deliver(ch, e)
	}
}

// deliver drops the event when the subscriber cannot take it, and absorbs
// the send-on-closed panic a concurrent unsubscribe can cause.
func deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
