package schedule

import (
	"testing"
	"time"
)

var sgt = time.FixedZone("SGT", 8*3600)

// 2025-01-05 is a Sunday; 2025-01-03 a Friday.
func date(day, hh, mm int) time.Time {
	return time.Date(2025, time.January, day, hh, mm, 0, 0, sgt)
}

func TestDaysUntil(t *testing.T) {
	sun := date(5, 10, 0)
	if got := DaysUntil(sun, time.Sunday, Inclusive); got != 0 {
		t.Fatalf("inclusive same day: got %d, want 0", got)
	}
	if got := DaysUntil(sun, time.Sunday, Exclusive); got != 7 {
		t.Fatalf("exclusive same day: got %d, want 7", got)
	}
	fri := date(3, 10, 0)
	if got := DaysUntil(fri, time.Sunday, Inclusive); got != 2 {
		t.Fatalf("fri->sun: got %d, want 2", got)
	}
	if got := DaysUntil(fri, time.Wednesday, Inclusive); got != 5 {
		t.Fatalf("fri->wed: got %d, want 5", got)
	}
}

func TestNextOccurrence(t *testing.T) {
	// Before the slot on the right weekday: same day.
	got := NextOccurrence(date(5, 10, 0), time.Sunday, 14, 0)
	if want := date(5, 14, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	// After the slot: next week.
	got = NextOccurrence(date(5, 15, 0), time.Sunday, 14, 0)
	if want := date(12, 14, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	// Exactly the slot: the instant itself.
	at := date(5, 14, 0)
	if got := NextOccurrence(at, time.Sunday, 14, 0); !got.Equal(at) {
		t.Fatalf("got %v, want %v", got, at)
	}
}

func TestPrevOccurrence(t *testing.T) {
	// After the slot on the right weekday: earlier same day.
	got := PrevOccurrence(date(5, 15, 0), time.Sunday, 14, 0)
	if want := date(5, 14, 0); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	// Before the slot: the previous week.
	got = PrevOccurrence(date(5, 10, 0), time.Sunday, 14, 0)
	if want := time.Date(2024, time.December, 29, 14, 0, 0, 0, sgt); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	// Exactly the slot: the instant itself.
	at := date(5, 14, 0)
	if got := PrevOccurrence(at, time.Sunday, 14, 0); !got.Equal(at) {
		t.Fatalf("got %v, want %v", got, at)
	}
	// A full week separates prev and next around any in-between instant.
	mid := date(8, 9, 30)
	prev := PrevOccurrence(mid, time.Sunday, 14, 0)
	next := NextOccurrence(mid, time.Sunday, 14, 0)
	if next.Sub(prev) != 7*24*time.Hour {
		t.Fatalf("prev %v and next %v are not a week apart", prev, next)
	}
}

func TestZoneClockRejectsUnknownZone(t *testing.T) {
	if _, err := NewZoneClock("Nowhere/Nonexistent"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestDateKeyAndSameDate(t *testing.T) {
	if got := DateKey(date(5, 23, 59)); got != "2025-01-05" {
		t.Fatalf("DateKey: got %q", got)
	}
	if !SameDate(date(5, 0, 0), date(5, 23, 59)) {
		t.Fatal("expected same date")
	}
	if SameDate(date(5, 23, 59), date(6, 0, 0)) {
		t.Fatal("expected different dates")
	}
}
