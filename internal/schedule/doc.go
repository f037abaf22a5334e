// Package schedule is the time-driven core of the bot.
//
// It owns the weekly event table, the wall-clock adapter for the configured
// time zone, and the dispatcher that fires each event at most once per
// calendar date. Missed slots are recovered once at startup (catch-up);
// the live loop never retries.
package schedule
