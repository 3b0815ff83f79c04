package scheduler

import (
	"fmt"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

// legalTransitions encodes the per-session state machine. COMPLETED and
// SKIPPED are terminal; skipping an IN_PROGRESS session is illegal because
// partial work has already been recorded against it.
var legalTransitions = map[models.SessionStatus]map[models.SessionStatus]bool{
	models.SessionStatusPending: {
		models.SessionStatusInProgress: true,
		models.SessionStatusCompleted:  true,
		models.SessionStatusSkipped:    true,
	},
	models.SessionStatusInProgress: {
		models.SessionStatusCompleted: true,
	},
}

// CanTransition reports whether moving a session from one status to another
// is legal.
func CanTransition(from, to models.SessionStatus) bool {
	return legalTransitions[from][to]
}

// EnsureTransition returns a SessionNotEditable error naming the violated
// transition, or nil when the move is legal. Illegal transitions are always
// reported to the caller, never silently ignored.
func EnsureTransition(session models.Session, to models.SessionStatus) error {
	if CanTransition(session.Status, to) {
		return nil
	}
	return apperrors.Clone(apperrors.ErrSessionNotEditable,
		fmt.Sprintf("session %s is %s and cannot transition to %s", session.ID, session.Status, to))
}
