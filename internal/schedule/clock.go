package schedule

import (
	"fmt"
	"time"
)

// Clock supplies the current wall-clock time in the bot's fixed time zone.
// The dispatcher never calls time.Now directly so tests can substitute a
// synthetic clock.
type Clock interface {
	Now() time.Time
}

type zoneClock struct {
	loc *time.Location
}

// NewZoneClock resolves the IANA zone name once, failing fast on an unknown
// zone instead of degrading to UTC or the host zone.
func NewZoneClock(tz string) (Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: invalid %q: %w", tz, err)
	}
	return zoneClock{loc: loc}, nil
}

func (c zoneClock) Now() time.Time { return time.Now().In(c.loc) }

// DaysUntilMode selects how DaysUntil treats a `from` that already falls on
// the target weekday. Poll titles want "this coming X, today included";
// strictly-future window math wants a full week instead. Callers pick
// explicitly so the two never get mixed up.
type DaysUntilMode int

const (
	// Inclusive returns 0 when from is already on the target weekday.
	Inclusive DaysUntilMode = iota
	// Exclusive returns 7 when from is already on the target weekday.
	Exclusive
)

// DaysUntil returns how many whole days separate from's date from the next
// date falling on wd, per the given mode.
func DaysUntil(from time.Time, wd time.Weekday, mode DaysUntilMode) int {
	d := int(wd-from.Weekday()+7) % 7
	if d == 0 && mode == Exclusive {
		return 7
	}
	return d
}

// NextOccurrence returns the next instant at or after from that falls on wd
// at hh:mm in from's location. If from is exactly that instant, from itself
// is returned.
func NextOccurrence(from time.Time, wd time.Weekday, hh, mm int) time.Time {
	days := DaysUntil(from, wd, Inclusive)
	cand := time.Date(from.Year(), from.Month(), from.Day()+days, hh, mm, 0, 0, from.Location())
	if cand.Before(from) {
		cand = cand.AddDate(0, 0, 7)
	}
	return cand
}

// PrevOccurrence returns the most recent instant at or before from that
// falls on wd at hh:mm in from's location.
func PrevOccurrence(from time.Time, wd time.Weekday, hh, mm int) time.Time {
	next := NextOccurrence(from, wd, hh, mm)
	if next.Equal(from) {
		return next
	}
	return next.AddDate(0, 0, -7)
}

// DateKey renders t's calendar date, used for occurrence keys and the
// midnight rollover check.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
