package schedule

import (
	"context"
	"sync"
	"time"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"
)

// Invoker executes a fired action against the messaging boundary.
// HasPollRef is consulted by catch-up to decide whether a stale PostPoll
// slot is still worth honoring.
type Invoker interface {
	Execute(ctx context.Context, a Action) error
	HasPollRef(ctx context.Context, k Kind) bool
}

// MarkerStore persists fired markers so a restart on the same date does not
// re-fire an occurrence. Keys are Event.OccurrenceKey values.
type MarkerStore interface {
	PutMarker(ctx context.Context, key string, until time.Time) error
	GetMarker(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

type Config struct {
	// Tick is the poll-loop granularity. Schedule points are whole minutes,
	// so anything comfortably under a minute works; default 15s.
	Tick time.Duration
	// StartupDelay defers catch-up so the Telegram connection can settle.
	StartupDelay time.Duration
}

const (
	defaultTick         = 15 * time.Second
	defaultStartupDelay = 5 * time.Second

	// Durable markers outlive the longest catch-up lookback (one week).
	markerTTL = 8 * 24 * time.Hour
)

type forceReq struct {
	action Action
	reply  chan error
}

// Dispatcher runs the cooperative tick loop. All dispatch (scheduled,
// catch-up and forced) happens on the single Run goroutine, in table order,
// so the invoker and stores never see concurrent calls.
type Dispatcher struct {
	cfg    Config
	clock  Clock
	events []Event
	inv    Invoker
	store  MarkerStore
	log    logx.Logger

	forceCh chan forceReq

	// Guarded state is only written by Run; the mutex exists for Snapshot
	// readers on the command path.
	mu         sync.Mutex
	firedToday map[string]struct{}
	lastDate   string
}

func NewDispatcher(cfg Config, clock Clock, events []Event, inv Invoker, store MarkerStore, log logx.Logger) *Dispatcher {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	} else if cfg.StartupDelay == 0 {
		cfg.StartupDelay = defaultStartupDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:        cfg,
		clock:      clock,
		events:     append([]Event(nil), events...),
		inv:        inv,
		store:      store,
		log:        log,
		forceCh:    make(chan forceReq),
		firedToday: map[string]struct{}{},
	}
}

// Force runs an action on the dispatcher's own timeline and reports its
// result. Forced runs ignore and never set fired markers: they are an
// operator override, not an occurrence.
func (d *Dispatcher) Force(ctx context.Context, a Action) error {
	req := forceReq{action: a, reply: make(chan error, 1)}
	select {
	case d.forceCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes catch-up once, then the live tick loop until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	now := d.clock.Now()
	d.mu.Lock()
	d.lastDate = DateKey(now)
	d.mu.Unlock()

	d.log.Info("dispatcher starting",
		logx.Int("events", len(d.events)),
		logx.Duration("tick", d.cfg.Tick),
		logx.String("local_now", now.Format(time.RFC1123)))

	if d.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.cfg.StartupDelay):
		}
	}
	d.runCatchUp(ctx)

	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-d.forceCh:
			d.log.Info("forcing action", logx.String("action", req.action.String()))
			req.reply <- d.inv.Execute(ctx, req.action)
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	now := d.clock.Now()

	// Midnight rollover: start a fresh fired set for the new date.
	if dk := DateKey(now); dk != d.lastSeenDate() {
		d.mu.Lock()
		d.firedToday = map[string]struct{}{}
		d.lastDate = dk
		d.mu.Unlock()
		d.log.Debug("date rolled over", logx.String("date", dk))
	}

	for _, e := range d.events {
		if !e.Matches(now) {
			continue
		}
		key := e.OccurrenceKey(now)
		if d.hasFired(ctx, key) {
			continue
		}
		d.fire(ctx, e, key, now)
	}
}

func (d *Dispatcher) lastSeenDate() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDate
}

// hasFired consults the in-process set first, then the durable store. The
// durable check matters when the process restarts inside the same minute it
// already fired in.
func (d *Dispatcher) hasFired(ctx context.Context, key string) bool {
	d.mu.Lock()
	_, ok := d.firedToday[key]
	d.mu.Unlock()
	if ok {
		return true
	}
	_, ok, err := d.store.GetMarker(ctx, key)
	if err != nil {
		d.log.Warn("marker read failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return ok
}

// fire invokes the action and records the occurrence as fired. A failed
// action still marks the occurrence: the next weekly slot or a manual force
// command is the recovery path, never an automatic same-day retry.
func (d *Dispatcher) fire(ctx context.Context, e Event, key string, occurred time.Time) {
	d.log.Info("firing event", logx.String("event", e.ID()), logx.Time("at", occurred))
	if err := d.inv.Execute(ctx, e.Action); err != nil {
		d.log.Warn("action failed; occurrence still marked fired",
			logx.String("event", e.ID()), logx.Err(err))
	}
	d.markFired(ctx, key, occurred)
}

func (d *Dispatcher) markFired(ctx context.Context, key string, occurred time.Time) {
	d.mu.Lock()
	d.firedToday[key] = struct{}{}
	d.mu.Unlock()
	if err := d.store.PutMarker(ctx, key, occurred.Add(markerTTL)); err != nil {
		// The in-memory set still protects this process; only a restart
		// before the next successful write could replay the occurrence.
		d.log.Warn("marker persist failed", logx.String("key", key), logx.Err(err))
	}
}

// runCatchUp fires slots missed while the process was down, once, in table
// order. Same-date misses are always honored. Prior-date misses are honored
// only for PostPoll of a kind that has never produced a stored reference:
// older poll content would reference the wrong week, and reminders are
// re-evaluated against current time by the live loop instead.
func (d *Dispatcher) runCatchUp(ctx context.Context) {
	now := d.clock.Now()
	for _, e := range d.events {
		if ctx.Err() != nil {
			return
		}
		expected := PrevOccurrence(now, e.Weekday, e.Hour, e.Minute)
		key := e.OccurrenceKey(expected)
		if d.hasFired(ctx, key) {
			continue
		}

		switch {
		case SameDate(expected, now):
			d.log.Info("catch-up: firing missed slot",
				logx.String("event", e.ID()),
				logx.Time("expected", expected))
			d.fire(ctx, e, key, expected)
		case e.Action.Op == OpPostPoll && !d.inv.HasPollRef(ctx, e.Action.Kind):
			d.log.Info("catch-up: posting first poll after multi-day gap",
				logx.String("event", e.ID()),
				logx.Time("expected", expected))
			d.fire(ctx, e, key, expected)
		default:
			d.log.Debug("catch-up: skipping stale slot",
				logx.String("event", e.ID()),
				logx.Time("expected", expected))
		}
	}
}

// EventStatus is a point-in-time view of one table entry, for operational
// commands.
type EventStatus struct {
	ID         string
	At         string
	Action     Action
	Next       time.Time
	FiredToday bool
}

// Snapshot reports every event with its next activation and whether it has
// fired on the current date.
func (d *Dispatcher) Snapshot() []EventStatus {
	now := d.clock.Now()
	out := make([]EventStatus, 0, len(d.events))
	d.mu.Lock()
	fired := make(map[string]struct{}, len(d.firedToday))
	for k := range d.firedToday {
		fired[k] = struct{}{}
	}
	d.mu.Unlock()
	for _, e := range d.events {
		_, f := fired[e.OccurrenceKey(now)]
		out = append(out, EventStatus{
			ID:         e.ID(),
			At:         e.At(),
			Action:     e.Action,
			Next:       e.Next(now),
			FiredToday: f,
		})
	}
	return out
}
