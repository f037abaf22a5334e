package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is the logical category of a recurring poll, distinct from any single
// posted instance.
type Kind string

const (
	KindCellGroup Kind = "cell_group"
	KindService   Kind = "service"
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cell_group", "cellgroup", "cg":
		return KindCellGroup, nil
	case "service", "svc", "sunday_service":
		return KindService, nil
	default:
		return "", fmt.Errorf("unknown poll kind %q (use cg or service)", s)
	}
}

// Op is the action an event performs when it fires.
type Op string

const (
	OpPostPoll     Op = "post_poll"
	OpSendReminder Op = "send_reminder"
)

func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "post_poll", "poll", "post":
		return OpPostPoll, nil
	case "send_reminder", "reminder", "remind":
		return OpSendReminder, nil
	default:
		return "", fmt.Errorf("unknown action %q (use post_poll or send_reminder)", s)
	}
}

// Action binds an operation to a poll kind.
type Action struct {
	Op   Op
	Kind Kind
}

func (a Action) String() string { return string(a.Op) + ":" + string(a.Kind) }

// Event is one entry of the weekly table. The table is immutable for the
// process lifetime; changing it requires a restart.
type Event struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	Action  Action

	sched cron.Schedule
}

// NewEvent validates the tuple and compiles the weekly cron spec used for
// next-occurrence reporting.
func NewEvent(wd time.Weekday, hour, minute int, a Action) (Event, error) {
	if hour < 0 || hour > 23 {
		return Event{}, fmt.Errorf("event hour %d out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return Event{}, fmt.Errorf("event minute %d out of range", minute)
	}
	if a.Op == "" || a.Kind == "" {
		return Event{}, fmt.Errorf("event action incomplete: %q", a.String())
	}
	e := Event{Weekday: wd, Hour: hour, Minute: minute, Action: a}
	sched, err := cron.ParseStandard(e.CronSpec())
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", e.ID(), err)
	}
	e.sched = sched
	return e, nil
}

// ID is a stable identifier, e.g. "post_poll.cell_group.sun.1400".
// Occurrence keys and log lines are built from it.
func (e Event) ID() string {
	return fmt.Sprintf("%s.%s.%s.%02d%02d",
		e.Action.Op, e.Action.Kind, strings.ToLower(e.Weekday.String()[:3]), e.Hour, e.Minute)
}

// At renders the weekly slot, e.g. "Sun 14:00".
func (e Event) At() string {
	return fmt.Sprintf("%s %02d:%02d", e.Weekday.String()[:3], e.Hour, e.Minute)
}

// CronSpec renders the standard five-field weekly spec for this slot.
func (e Event) CronSpec() string {
	return fmt.Sprintf("%d %d * * %d", e.Minute, e.Hour, int(e.Weekday))
}

// Next returns the next activation strictly after from.
func (e Event) Next(from time.Time) time.Time {
	if e.sched == nil {
		return NextOccurrence(from.Add(time.Minute), e.Weekday, e.Hour, e.Minute)
	}
	return e.sched.Next(from)
}

// Matches reports whether t falls inside this event's minute.
func (e Event) Matches(t time.Time) bool {
	return t.Weekday() == e.Weekday && t.Hour() == e.Hour && t.Minute() == e.Minute
}

// OccurrenceKey identifies one calendar-date instance of the event.
func (e Event) OccurrenceKey(date time.Time) string {
	return e.ID() + "@" + DateKey(date)
}

// ValidateTable rejects an empty table and duplicate
// (weekday, time, action, kind) tuples.
func ValidateTable(events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("event table is empty")
	}
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		id := e.ID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate event %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ParseWeekday accepts full and three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
}

// ParseHHMM parses "HH:MM" into hour and minute.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
