package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"adminbot/internal/eventbus"
	"adminbot/internal/runtime/supervisor"
	"adminbot/internal/storage"
	"adminbot/pkg/logx"
)

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func newDispatcher(notify Notify) *Dispatcher {
	// rate cap off so tests run instantly
	return NewDispatcher(notify, logx.Nop(), WithRate(0))
}

func TestSendAllSucceed(t *testing.T) {
	t.Parallel()

	var delivered []int64
	d := newDispatcher(func(_ context.Context, id int64, text string) error {
		if text != "hello" {
			t.Errorf("text = %q", text)
		}
		delivered = append(delivered, id)
		return nil
	})

	r := d.Send(context.Background(), "hello", ids(7), nil)
	if r.Total != 7 || r.Sent != 7 || r.Errors != 0 || r.SuccessRatePercent != 100 {
		t.Fatalf("report = %+v", r)
	}
	for i, id := range delivered {
		if id != int64(i+1) {
			t.Fatalf("delivery order broken: %v", delivered)
		}
	}
}

func TestSendIsolatesFailures(t *testing.T) {
	t.Parallel()

	// recipients 5 and 17 fail; the loop must finish the batch
	d := newDispatcher(func(_ context.Context, id int64, _ string) error {
		if id == 5 || id == 17 {
			return errors.New("blocked")
		}
		return nil
	})

	r := d.Send(context.Background(), "msg", ids(23), nil)
	want := Report{Total: 23, Sent: 21, Errors: 2, SuccessRatePercent: 91.3}
	if r != want {
		t.Fatalf("report = %+v, want %+v", r, want)
	}
}

func TestSendEmptySnapshot(t *testing.T) {
	t.Parallel()

	d := newDispatcher(func(context.Context, int64, string) error {
		t.Fatal("notify called with no recipients")
		return nil
	})
	r := d.Send(context.Background(), "msg", nil, nil)
	if r != (Report{}) {
		t.Fatalf("report = %+v, want zero", r)
	}
}

func TestSendCountsAlwaysAddUp(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 9, 10, 11, 50} {
		d := newDispatcher(func(_ context.Context, id int64, _ string) error {
			if id%3 == 0 {
				return errors.New("unreachable")
			}
			return nil
		})
		r := d.Send(context.Background(), "msg", ids(n), nil)
		if r.Sent+r.Errors != r.Total || r.Total != n {
			t.Fatalf("n=%d: report = %+v", n, r)
		}
		if r.Sent < 0 || r.Sent > r.Total {
			t.Fatalf("n=%d: sent out of range: %+v", n, r)
		}
	}
}

func TestSendProgressCadence(t *testing.T) {
	t.Parallel()

	var snaps []Progress
	d := newDispatcher(func(context.Context, int64, string) error { return nil })

	d.Send(context.Background(), "msg", ids(25), func(p Progress) {
		snaps = append(snaps, p)
	})

	// every 10 processed, but never for the final recipient
	if len(snaps) != 2 {
		t.Fatalf("progress snapshots = %+v", snaps)
	}
	if snaps[0].Processed != 10 || snaps[1].Processed != 20 {
		t.Fatalf("cadence = %+v", snaps)
	}
	for _, p := range snaps {
		if p.Sent+p.Errors != p.Processed || p.Total != 25 {
			t.Fatalf("inconsistent snapshot: %+v", p)
		}
	}
}

func TestSendProgressPanicIgnored(t *testing.T) {
	t.Parallel()

	d := newDispatcher(func(context.Context, int64, string) error { return nil })
	r := d.Send(context.Background(), "msg", ids(30), func(Progress) {
		panic("status surface went away")
	})
	if r.Sent != 30 {
		t.Fatalf("report = %+v", r)
	}
}

func TestSuccessRateRounding(t *testing.T) {
	t.Parallel()

	cases := []struct {
		sent, total int
		want        float64
	}{
		{21, 23, 91.3},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{0, 5, 0},
		{5, 5, 100},
		{0, 0, 0},
	}
	for _, tc := range cases {
		if got := successRate(tc.sent, tc.total); got != tc.want {
			t.Errorf("successRate(%d, %d) = %v, want %v", tc.sent, tc.total, got, tc.want)
		}
	}
}

func TestServiceSnapshotIsolation(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	ctx := context.Background()
	for _, id := range ids(3) {
		if err := store.UpsertUser(ctx, storage.User{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	var delivered []int64
	done := make(chan struct{})
	gate := make(chan struct{})
	disp := NewDispatcher(func(_ context.Context, id int64, _ string) error {
		<-gate
		delivered = append(delivered, id)
		return nil
	}, logx.Nop(), WithRate(0))

	sup := supervisor.New(ctx)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	svc := NewService(store, disp, sup, bus, logx.Nop())
	n, err := svc.Start(ctx, 1000, "hello")
	if err != nil || n != 3 {
		t.Fatalf("Start = %d, %v", n, err)
	}

	// registered after the snapshot: must not receive anything
	if err := store.UpsertUser(ctx, storage.User{ID: 99}); err != nil {
		t.Fatal(err)
	}
	close(gate)

	go func() {
		_ = sup.Wait(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not finish")
	}

	if len(delivered) != 3 {
		t.Fatalf("delivered = %v", delivered)
	}
	for _, id := range delivered {
		if id == 99 {
			t.Fatal("post-snapshot recipient received the broadcast")
		}
	}

	select {
	case ev := <-events:
		if ev.Type != EventDone {
			t.Fatalf("event = %+v", ev)
		}
		de := ev.Data.(DoneEvent)
		if de.Report.Sent != 3 || de.Job.OperatorID != 1000 {
			t.Fatalf("done event = %+v", de)
		}
	default:
		t.Fatal("no done event published")
	}
}

func TestServiceZeroRecipients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(2)
	defer unsub()

	svc := NewService(storage.NewMemory(),
		newDispatcher(func(context.Context, int64, string) error { return nil }),
		supervisor.New(ctx), bus, logx.Nop())

	n, err := svc.Start(ctx, 1000, "hello")
	if err != nil || n != 0 {
		t.Fatalf("Start = %d, %v", n, err)
	}
	select {
	case ev := <-events:
		de, ok := ev.Data.(DoneEvent)
		if !ok || de.Report.Total != 0 || de.Report.SuccessRatePercent != 0 {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatal("zero-recipient job published no completion")
	}
}
