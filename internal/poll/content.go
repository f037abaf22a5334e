package poll

import (
	"fmt"
	"time"

	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/schedule"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/transport"
)

// Fixed gathering days the poll titles point at.
const (
	cellGroupDay = time.Friday
	serviceDay   = time.Sunday
)

var cellGroupOptions = []string{
	"🍽️ Dinner 7.15pm",
	"⛪ CG 8.15pm",
	"❌ Cannot make it",
}

var serviceOptions = []string{
	"⏰ 9am",
	"🕚 11.15am",
	"🙋 Serving",
	"🍽️ Lunch",
	"🧑‍🤝‍🧑 Invited a friend",
}

// Ordinal renders a day-of-month suffix: 1st, 2nd, 3rd, 4th... with the
// teens (10th through 20th) always taking "th".
func Ordinal(n int) string {
	if m := n % 100; m >= 10 && m <= 20 {
		return fmt.Sprintf("%dth", n)
	}
	switch n % 10 {
	case 1:
		return fmt.Sprintf("%dst", n)
	case 2:
		return fmt.Sprintf("%dnd", n)
	case 3:
		return fmt.Sprintf("%drd", n)
	default:
		return fmt.Sprintf("%dth", n)
	}
}

// FormatDateLong renders a date as "5th September 2025 (Fri)".
func FormatDateLong(d time.Time) string {
	return fmt.Sprintf("%s %s (%s)", Ordinal(d.Day()), d.Format("January 2006"), d.Format("Mon"))
}

// BuildPoll composes the poll for a kind as of now. The title targets the
// next gathering date counting today itself: a poll posted on Sunday names
// that same Sunday's service.
func BuildPoll(k schedule.Kind, now time.Time) (transport.PollSpec, error) {
	switch k {
	case schedule.KindCellGroup:
		target := now.AddDate(0, 0, schedule.DaysUntil(now, cellGroupDay, schedule.Inclusive))
		return transport.PollSpec{
			Question:    "Cell Group – " + FormatDateLong(target),
			Options:     append([]string(nil), cellGroupOptions...),
			MultiSelect: false,
			Anonymous:   false,
		}, nil
	case schedule.KindService:
		target := now.AddDate(0, 0, schedule.DaysUntil(now, serviceDay, schedule.Inclusive))
		return transport.PollSpec{
			Question:    "Sunday Service – " + FormatDateLong(target),
			Options:     append([]string(nil), serviceOptions...),
			MultiSelect: true,
			Anonymous:   false,
		}, nil
	default:
		return transport.PollSpec{}, fmt.Errorf("no poll content for kind %q", k)
	}
}

// ReminderText composes the weekly nudge for a kind.
func ReminderText(k schedule.Kind) string {
	switch k {
	case schedule.KindService:
		return "📝 Remember to vote for the Service Poll if you have not done so yet!"
	default:
		return "📝 Remember to vote for the CG Poll if you have not done so yet!"
	}
}

// OnlineText composes the startup announcement.
func OnlineText(now time.Time) string {
	return fmt.Sprintf("✅ Scheduler online at %s (%s)",
		now.Format("Mon 02 Jan 2006 15:04:05"), now.Format("MST"))
}
