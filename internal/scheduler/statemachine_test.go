package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplanhq/studyplan-api/internal/models"
	apperrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

func TestSessionTransitions(t *testing.T) {
	cases := []struct {
		from  models.SessionStatus
		to    models.SessionStatus
		legal bool
	}{
		{models.SessionStatusPending, models.SessionStatusInProgress, true},
		{models.SessionStatusPending, models.SessionStatusCompleted, true},
		{models.SessionStatusPending, models.SessionStatusSkipped, true},
		{models.SessionStatusInProgress, models.SessionStatusCompleted, true},
		{models.SessionStatusInProgress, models.SessionStatusSkipped, false},
		{models.SessionStatusCompleted, models.SessionStatusCompleted, false},
		{models.SessionStatusCompleted, models.SessionStatusSkipped, false},
		{models.SessionStatusSkipped, models.SessionStatusPending, false},
		{models.SessionStatusSkipped, models.SessionStatusCompleted, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.legal, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEnsureTransitionReportsViolation(t *testing.T) {
	session := models.Session{ID: "session-1", Status: models.SessionStatusCompleted}

	err := EnsureTransition(session, models.SessionStatusSkipped)
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrSessionNotEditable.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "session-1")
	assert.Contains(t, appErr.Message, "COMPLETED")
}

func TestEnsureTransitionAllowsLegalMove(t *testing.T) {
	session := models.Session{ID: "session-1", Status: models.SessionStatusPending}
	assert.NoError(t, EnsureTransition(session, models.SessionStatusInProgress))
}
