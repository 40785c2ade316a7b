package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	first, unsubFirst := b.Subscribe(1)
	second, unsubSecond := b.Subscribe(1)
	defer unsubFirst()
	defer unsubSecond()

	b.Publish(Event{Type: "x", Data: 7})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			if ev.Type != "x" || ev.Data != 7 {
				t.Fatalf("event = %+v", ev)
			}
			if ev.Time.IsZero() {
				t.Error("publish did not stamp the event time")
			}
		default:
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}

	// publishing after the last subscriber left must not panic
	b.Publish(Event{Type: "x"})
}
