package scheduler

import (
	"math"
	"time"

	"github.com/studyplanhq/studyplan-api/internal/models"
)

// Difficulty rating bounds for completed sessions. Ratings of 3 and above
// count as successful recall, mirroring the SM-2 quality scale.
const (
	MinDifficulty     = 0
	MaxDifficulty     = 5
	PassingDifficulty = 3
)

// Params holds the spaced-repetition coefficients. The values are tunable
// defaults, surfaced through configuration rather than baked in.
type Params struct {
	ReviewMultiplier  float64
	InitialEase       float64
	MinEase           float64
	FailedEasePenalty float64
	SuccessRateWeight float64
}

// DefaultParams returns the stock SM-2 style coefficients.
func DefaultParams() Params {
	return Params{
		ReviewMultiplier:  2.2,
		InitialEase:       2.5,
		MinEase:           1.3,
		FailedEasePenalty: 0.2,
		SuccessRateWeight: 0.2,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.ReviewMultiplier <= 0 {
		p.ReviewMultiplier = d.ReviewMultiplier
	}
	if p.InitialEase <= 0 {
		p.InitialEase = d.InitialEase
	}
	if p.MinEase <= 0 {
		p.MinEase = d.MinEase
	}
	if p.FailedEasePenalty <= 0 {
		p.FailedEasePenalty = d.FailedEasePenalty
	}
	if p.SuccessRateWeight <= 0 || p.SuccessRateWeight > 1 {
		p.SuccessRateWeight = d.SuccessRateWeight
	}
	return p
}

// NewStat initialises spaced-repetition state for a theme that has never
// been reviewed.
func (p Params) NewStat(planID, themeID string) models.ThemeStat {
	p = p.withDefaults()
	return models.ThemeStat{
		PlanID:       planID,
		ThemeID:      themeID,
		EaseFactor:   p.InitialEase,
		IntervalDays: 1,
	}
}

// Review applies one completed session with the given difficulty rating to
// the theme state and returns the updated copy.
//
// Successful recall (rating >= 3) grows the interval by the prior ease
// factor, then adjusts ease by the SM-2 delta, floored at MinEase. Failed
// recall resets the interval to one day and penalises ease. The success
// rate is an exponentially weighted pass ratio.
func (p Params) Review(stat models.ThemeStat, difficulty int, now time.Time) models.ThemeStat {
	p = p.withDefaults()
	if difficulty < MinDifficulty {
		difficulty = MinDifficulty
	}
	if difficulty > MaxDifficulty {
		difficulty = MaxDifficulty
	}
	if stat.EaseFactor < p.MinEase {
		stat.EaseFactor = p.InitialEase
	}
	if stat.IntervalDays < 1 {
		stat.IntervalDays = 1
	}

	var passed float64
	if difficulty >= PassingDifficulty {
		passed = 1

		next := int(math.Round(float64(stat.IntervalDays) * stat.EaseFactor))
		if next <= stat.IntervalDays {
			// The interval must grow after successful recall even at the
			// minimum ease factor.
			next = stat.IntervalDays + 1
		}
		stat.IntervalDays = next

		q := float64(difficulty)
		ease := stat.EaseFactor + (0.1 - (5-q)*(0.08+(5-q)*0.02))
		if ease < p.MinEase {
			ease = p.MinEase
		}
		stat.EaseFactor = ease
	} else {
		stat.IntervalDays = 1
		stat.EaseFactor = math.Max(p.MinEase, stat.EaseFactor-p.FailedEasePenalty)
	}

	stat.SuccessRate = (1-p.SuccessRateWeight)*stat.SuccessRate + p.SuccessRateWeight*passed
	reviewed := Day(now)
	stat.LastReviewedAt = &reviewed
	return stat
}

// NextReview computes when the theme is due again: the last review date
// plus the current interval, shifted forward to the first date with enough
// free capacity. The scan is bounded by maxScanDays past the due date.
func NextReview(stat models.ThemeStat, hours float64, capacity Capacity, ledger Ledger, maxScanDays int) (time.Time, bool) {
	if stat.LastReviewedAt == nil {
		return time.Time{}, false
	}
	due := Day(*stat.LastReviewedAt).AddDate(0, 0, stat.IntervalDays)
	return capacity.NextFreeDate(due, hours, ledger, maxScanDays)
}
