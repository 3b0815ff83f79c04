package scheduler

import (
	"time"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

const dateLayout = "2006-01-02"

// Day truncates a timestamp to its calendar date in UTC. Every date the
// engine works with goes through this first.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey renders a date as the canonical ledger key.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// DaysBetween returns the whole days from a to b (negative when b precedes a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Capacity converts a weekly availability pattern into a per-date capacity
// function. It is a pure value: no side effects, no state.
type Capacity struct {
	week models.WeeklySchedule
}

// NewCapacity wraps a weekly schedule.
func NewCapacity(week models.WeeklySchedule) Capacity {
	return Capacity{week: week}
}

// HoursOn returns the configured capacity for the weekday of date.
func (c Capacity) HoursOn(date time.Time) float64 {
	return c.week.HoursOn(date)
}

// FreeOn returns the unallocated hours on date given the current ledger.
func (c Capacity) FreeOn(date time.Time, ledger Ledger) float64 {
	free := c.HoursOn(date) - ledger[DateKey(date)]
	if free < 0 {
		return 0
	}
	return free
}

// TotalBetween sums capacity over [from, to).
func (c Capacity) TotalBetween(from, to time.Time) float64 {
	var total float64
	for d := Day(from); d.Before(Day(to)); d = d.AddDate(0, 0, 1) {
		total += c.HoursOn(d)
	}
	return total
}

// NextFreeDate scans forward from the given date for the first day with at
// least hours of free capacity, looking at most maxScanDays ahead.
func (c Capacity) NextFreeDate(from time.Time, hours float64, ledger Ledger, maxScanDays int) (time.Time, bool) {
	d := Day(from)
	for i := 0; i <= maxScanDays; i++ {
		if c.FreeOn(d, ledger) >= hours {
			return d, true
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// Ledger tracks allocated hours per date during generation and capacity
// checks. Keys come from DateKey.
type Ledger map[string]float64

// NewLedger returns an empty ledger.
func NewLedger() Ledger {
	return make(Ledger)
}

// LedgerFromSessions seeds a ledger from existing sessions. SKIPPED sessions
// release their capacity and are not counted.
func LedgerFromSessions(sessions []models.Session) Ledger {
	ledger := NewLedger()
	for _, s := range sessions {
		if s.Status == models.SessionStatusSkipped {
			continue
		}
		ledger.Add(s.ScheduledDate, s.ScheduledHours)
	}
	return ledger
}

// Add records hours against a date.
func (l Ledger) Add(date time.Time, hours float64) {
	l[DateKey(date)] += hours
}
