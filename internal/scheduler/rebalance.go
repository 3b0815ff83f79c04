package scheduler

import (
	"fmt"
	"time"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// Reschedule computes the replacement for a skipped session: the earliest
// date on or after from with enough free hours, keeping theme, part, hours
// and type. Existing non-SKIPPED sessions pin their capacity. Replacements
// never land on or past the exam date.
func Reschedule(week models.WeeklySchedule, existing []models.Session, skipped models.Session, from, exam time.Time) (models.Session, error) {
	capacity := NewCapacity(week)
	ledger := LedgerFromSessions(existing)

	// NextFreeDate scans maxScan+1 days starting at from; the last candidate
	// must stay strictly before the exam.
	maxScan := DaysBetween(from, exam) - 1
	if maxScan < 0 {
		return models.Session{}, apperrors.Clone(apperrors.ErrCapacityExceeded,
			"no day before the exam has room for the replacement session")
	}
	date, ok := capacity.NextFreeDate(Day(from), skipped.ScheduledHours, ledger, maxScan)
	if !ok {
		return models.Session{}, apperrors.Clone(apperrors.ErrCapacityExceeded,
			fmt.Sprintf("no day before the exam has %.1fh free for the replacement session", skipped.ScheduledHours))
	}

	return models.Session{
		PlanID:         skipped.PlanID,
		ThemeID:        skipped.ThemeID,
		PartIndex:      skipped.PartIndex,
		ScheduledDate:  date,
		ScheduledHours: skipped.ScheduledHours,
		Type:           skipped.Type,
		Status:         models.SessionStatusPending,
		DueDate:        skipped.DueDate,
	}, nil
}

// ShouldRebalance reports whether accumulated skips crossed the automatic
// regeneration threshold.
func ShouldRebalance(skipped, total int, ratio float64) bool {
	if total == 0 || ratio <= 0 {
		return false
	}
	return float64(skipped)/float64(total) > ratio
}
