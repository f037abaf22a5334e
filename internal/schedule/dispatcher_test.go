package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []Action
	err   error
	refs  map[Kind]bool
}

func (f *fakeInvoker) Execute(ctx context.Context, a Action) error {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	f.mu.Unlock()
	return f.err
}

func (f *fakeInvoker) HasPollRef(ctx context.Context, k Kind) bool { return f.refs[k] }

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memMarkers struct {
	mu     sync.Mutex
	m      map[string]time.Time
	putErr error
}

func newMemMarkers() *memMarkers { return &memMarkers{m: map[string]time.Time{}} }

func (s *memMarkers) PutMarker(ctx context.Context, key string, until time.Time) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	s.m[key] = until
	s.mu.Unlock()
	return nil
}

func (s *memMarkers) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.m[key]
	return u, ok, nil
}

func newTestDispatcher(t *testing.T, clk Clock, inv Invoker, st MarkerStore, events ...Event) *Dispatcher {
	t.Helper()
	return NewDispatcher(Config{Tick: time.Second, StartupDelay: -1}, clk, events, inv, st, logx.Nop())
}

func TestTickFiresExactlyOncePerMinute(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 13, 59)}
	inv := &fakeInvoker{}
	st := newMemMarkers()
	d := newTestDispatcher(t, clk, inv, st, e)
	ctx := context.Background()

	d.tick(ctx)
	if inv.callCount() != 0 {
		t.Fatal("fired before the slot minute")
	}

	clk.set(date(5, 14, 0))
	d.tick(ctx)
	clk.set(date(5, 14, 0).Add(30 * time.Second))
	d.tick(ctx)
	if got := inv.callCount(); got != 1 {
		t.Fatalf("got %d executions, want 1", got)
	}

	if _, ok, _ := st.GetMarker(ctx, e.OccurrenceKey(clk.Now())); !ok {
		t.Fatal("durable marker not written")
	}
}

func TestTickSameMinuteRunsInTableOrder(t *testing.T) {
	e1 := mustEvent(t, time.Sunday, 14, 0, OpSendReminder, KindCellGroup)
	e2 := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindService)
	clk := &fakeClock{t: date(5, 14, 0)}
	inv := &fakeInvoker{}
	d := newTestDispatcher(t, clk, inv, newMemMarkers(), e1, e2)

	d.tick(context.Background())
	if len(inv.calls) != 2 {
		t.Fatalf("got %d executions, want 2", len(inv.calls))
	}
	if inv.calls[0] != e1.Action || inv.calls[1] != e2.Action {
		t.Fatalf("table order violated: %v", inv.calls)
	}
}

func TestRestartWithinSameMinuteDoesNotRefire(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 14, 0)}
	st := newMemMarkers()
	ctx := context.Background()

	inv1 := &fakeInvoker{}
	d1 := newTestDispatcher(t, clk, inv1, st, e)
	d1.tick(ctx)
	if inv1.callCount() != 1 {
		t.Fatalf("first process: got %d executions, want 1", inv1.callCount())
	}

	// Fresh dispatcher, same durable store, still inside the slot minute.
	clk.set(date(5, 14, 0).Add(45 * time.Second))
	inv2 := &fakeInvoker{}
	d2 := newTestDispatcher(t, clk, inv2, st, e)
	d2.tick(ctx)
	if inv2.callCount() != 0 {
		t.Fatal("restart refired an already-marked occurrence")
	}
}

func TestMidnightRolloverAllowsNextWeek(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 14, 0)}
	inv := &fakeInvoker{}
	d := newTestDispatcher(t, clk, inv, newMemMarkers(), e)
	ctx := context.Background()

	d.tick(ctx)
	// Monday after midnight: fired set resets, nothing matches.
	clk.set(date(6, 0, 1))
	d.tick(ctx)
	if d.lastSeenDate() != "2025-01-06" {
		t.Fatalf("rollover not recorded: %q", d.lastSeenDate())
	}
	// Next Sunday's slot is a distinct occurrence.
	clk.set(date(12, 14, 0))
	d.tick(ctx)
	if got := inv.callCount(); got != 2 {
		t.Fatalf("got %d executions, want 2", got)
	}
}

func TestFailedActionStillMarkedFired(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 14, 0)}
	inv := &fakeInvoker{err: errors.New("telegram down")}
	d := newTestDispatcher(t, clk, inv, newMemMarkers(), e)
	ctx := context.Background()

	d.tick(ctx)
	inv.err = nil
	clk.set(date(5, 14, 0).Add(30 * time.Second))
	d.tick(ctx)
	if got := inv.callCount(); got != 1 {
		t.Fatalf("same-day retry after failure: %d executions", got)
	}
}

func TestMarkerPersistFailureStillProtectsProcess(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 14, 0)}
	inv := &fakeInvoker{}
	st := newMemMarkers()
	st.putErr = errors.New("disk full")
	d := newTestDispatcher(t, clk, inv, st, e)
	ctx := context.Background()

	d.tick(ctx)
	d.tick(ctx)
	if got := inv.callCount(); got != 1 {
		t.Fatalf("in-memory dedup failed: %d executions", got)
	}
}

func TestCatchUpFiresSameDateMiss(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 16, 0)} // started two hours late
	inv := &fakeInvoker{}
	st := newMemMarkers()
	d := newTestDispatcher(t, clk, inv, st, e)
	ctx := context.Background()

	d.runCatchUp(ctx)
	if got := inv.callCount(); got != 1 {
		t.Fatalf("got %d executions, want 1", got)
	}

	// A second restart the same evening must not refire.
	inv2 := &fakeInvoker{}
	d2 := newTestDispatcher(t, clk, inv2, st, e)
	d2.runCatchUp(ctx)
	if inv2.callCount() != 0 {
		t.Fatal("second catch-up refired the occurrence")
	}
}

func TestCatchUpPriorDateRules(t *testing.T) {
	post := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	remind := mustEvent(t, time.Wednesday, 17, 30, OpSendReminder, KindCellGroup)
	clk := &fakeClock{t: date(6, 10, 0)} // Monday, both slots are in the past
	ctx := context.Background()

	// No stored reference: the stale poll slot is honored, the reminder is not.
	inv := &fakeInvoker{refs: map[Kind]bool{}}
	d := newTestDispatcher(t, clk, inv, newMemMarkers(), post, remind)
	d.runCatchUp(ctx)
	if got := inv.callCount(); got != 1 {
		t.Fatalf("got %d executions, want 1", got)
	}
	if inv.calls[0] != post.Action {
		t.Fatalf("wrong action caught up: %v", inv.calls[0])
	}

	// With a stored reference the stale slot is skipped entirely.
	inv2 := &fakeInvoker{refs: map[Kind]bool{KindCellGroup: true}}
	d2 := newTestDispatcher(t, clk, inv2, newMemMarkers(), post, remind)
	d2.runCatchUp(ctx)
	if inv2.callCount() != 0 {
		t.Fatal("stale slot fired despite existing poll reference")
	}
}

func TestForceRunsWithoutMarking(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(6, 10, 0)} // Monday
	inv := &fakeInvoker{refs: map[Kind]bool{KindCellGroup: true}}
	st := newMemMarkers()
	d := NewDispatcher(Config{Tick: time.Hour, StartupDelay: -1}, clk, []Event{e}, inv, st, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	a := Action{Op: OpPostPoll, Kind: KindCellGroup}
	fctx, fcancel := context.WithTimeout(ctx, 5*time.Second)
	defer fcancel()
	if err := d.Force(fctx, a); err != nil {
		t.Fatalf("Force: %v", err)
	}
	if got := inv.callCount(); got != 1 {
		t.Fatalf("got %d executions, want 1", got)
	}
	st.mu.Lock()
	n := len(st.m)
	st.mu.Unlock()
	if n != 0 {
		t.Fatal("forced run wrote a fired marker")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSnapshot(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	clk := &fakeClock{t: date(5, 14, 0)}
	inv := &fakeInvoker{}
	d := newTestDispatcher(t, clk, inv, newMemMarkers(), e)
	d.tick(context.Background())

	snap := d.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d entries, want 1", len(snap))
	}
	if !snap[0].FiredToday {
		t.Fatal("expected FiredToday")
	}
	if want := date(12, 14, 0); !snap[0].Next.Equal(want) {
		t.Fatalf("Next: got %v, want %v", snap[0].Next, want)
	}
}
