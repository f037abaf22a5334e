package schedule

import (
	"testing"
	"time"
)

func mustEvent(t *testing.T, wd time.Weekday, hh, mm int, op Op, k Kind) Event {
	t.Helper()
	e, err := NewEvent(wd, hh, mm, Action{Op: op, Kind: k})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return e
}

func TestNewEventValidation(t *testing.T) {
	if _, err := NewEvent(time.Sunday, 24, 0, Action{Op: OpPostPoll, Kind: KindCellGroup}); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := NewEvent(time.Sunday, 14, 60, Action{Op: OpPostPoll, Kind: KindCellGroup}); err == nil {
		t.Fatal("expected error for minute 60")
	}
	if _, err := NewEvent(time.Sunday, 14, 0, Action{}); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestEventIDAndSpec(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	if got := e.ID(); got != "post_poll.cell_group.sun.1400" {
		t.Fatalf("ID: got %q", got)
	}
	if got := e.At(); got != "Sun 14:00" {
		t.Fatalf("At: got %q", got)
	}
	if got := e.CronSpec(); got != "0 14 * * 0" {
		t.Fatalf("CronSpec: got %q", got)
	}
	if got := e.OccurrenceKey(date(5, 14, 0)); got != "post_poll.cell_group.sun.1400@2025-01-05" {
		t.Fatalf("OccurrenceKey: got %q", got)
	}
}

func TestEventMatchesAndNext(t *testing.T) {
	e := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	if !e.Matches(date(5, 14, 0)) || !e.Matches(date(5, 14, 0).Add(30*time.Second)) {
		t.Fatal("expected match inside the slot minute")
	}
	if e.Matches(date(5, 14, 1)) || e.Matches(date(6, 14, 0)) {
		t.Fatal("unexpected match outside the slot")
	}
	// Next is strictly after from.
	if got, want := e.Next(date(5, 14, 0)), date(12, 14, 0); !got.Equal(want) {
		t.Fatalf("Next at slot: got %v, want %v", got, want)
	}
	if got, want := e.Next(date(5, 10, 0)), date(5, 14, 0); !got.Equal(want) {
		t.Fatalf("Next before slot: got %v, want %v", got, want)
	}
}

func TestValidateTable(t *testing.T) {
	if err := ValidateTable(nil); err == nil {
		t.Fatal("expected error for empty table")
	}
	e1 := mustEvent(t, time.Sunday, 14, 0, OpPostPoll, KindCellGroup)
	e2 := mustEvent(t, time.Friday, 23, 0, OpPostPoll, KindService)
	if err := ValidateTable([]Event{e1, e2}); err != nil {
		t.Fatalf("valid table rejected: %v", err)
	}
	if err := ValidateTable([]Event{e1, e1}); err == nil {
		t.Fatal("expected error for duplicate entry")
	}
}

func TestParseHelpers(t *testing.T) {
	if wd, err := ParseWeekday("Wed"); err != nil || wd != time.Wednesday {
		t.Fatalf("ParseWeekday: %v %v", wd, err)
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Fatal("expected weekday error")
	}
	hh, mm, err := ParseHHMM("17:30")
	if err != nil || hh != 17 || mm != 30 {
		t.Fatalf("ParseHHMM: %d:%d %v", hh, mm, err)
	}
	for _, bad := range []string{"1730", "25:00", "12:61", "x:y"} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if k, err := ParseKind("cg"); err != nil || k != KindCellGroup {
		t.Fatalf("ParseKind: %v %v", k, err)
	}
	if op, err := ParseOp("reminder"); err != nil || op != OpSendReminder {
		t.Fatalf("ParseOp: %v %v", op, err)
	}
}
