package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/studyplanhq/studyplan-api/internal/models"
	"github.com/studyplanhq/studyplan-api/internal/repository"
	"github.com/studyplanhq/studyplan-api/internal/scheduler"
	appErrors "github.com/studyplanhq/studyplan-api/pkg/errors"
)

const maxAgendaRecommendations = 3

type agendaSessionReader interface {
	ListByPlanAndDate(ctx context.Context, planID string, date time.Time) ([]models.Session, error)
}

type agendaThemeReader interface {
	ListByPlan(ctx context.Context, planID string) ([]models.Theme, error)
}

type agendaStatReader interface {
	ListByPlan(ctx context.Context, planID string) ([]models.ThemeStat, error)
}

type agendaCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// AgendaService assembles the daily view of a plan. Responses are cached in
// Redis and invalidated by every write that touches the plan's sessions.
type AgendaService struct {
	plans    sessionPlanReader
	sessions agendaSessionReader
	themes   agendaThemeReader
	stats    agendaStatReader
	cache    agendaCache
	metrics  cacheObserver
	ttl      time.Duration
	logger   *zap.Logger
}

// NewAgendaService wires the agenda reader.
func NewAgendaService(
	plans sessionPlanReader,
	sessions agendaSessionReader,
	themes agendaThemeReader,
	stats agendaStatReader,
	cache agendaCache,
	metrics cacheObserver,
	ttl time.Duration,
	logger *zap.Logger,
) *AgendaService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgendaService{
		plans:    plans,
		sessions: sessions,
		themes:   themes,
		stats:    stats,
		cache:    cache,
		metrics:  metrics,
		ttl:      ttl,
		logger:   logger,
	}
}

// Get returns the agenda for one calendar date of the caller's plan.
func (s *AgendaService) Get(ctx context.Context, ownerID, planID string, date time.Time) (*models.Agenda, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing owner identity")
	}
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if plan.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "plan belongs to another owner")
	}

	day := scheduler.Day(date)
	key := repository.AgendaKey(planID, day)

	if s.cache != nil {
		lookupStart := time.Now()
		var cached models.Agenda
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(lookupStart))
		}
		if err == nil {
			return &cached, nil
		}
		var typed *appErrors.Error
		if !errors.As(err, &typed) || typed.Code != appErrors.ErrCacheMiss.Code {
			s.logger.Warn("agenda cache lookup failed", zap.String("key", key), zap.Error(err))
		}
	}

	agenda, err := s.build(ctx, plan, day)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, agenda, s.ttl); err != nil {
			s.logger.Warn("agenda cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return agenda, nil
}

func (s *AgendaService) build(ctx context.Context, plan *models.StudyPlan, day time.Time) (*models.Agenda, error) {
	sessions, err := s.sessions.ListByPlanAndDate(ctx, plan.ID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	capacity := plan.WeeklySchedule.HoursOn(day)
	var planned float64
	scheduledThemes := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		if sess.Status == models.SessionStatusSkipped {
			continue
		}
		planned += sess.ScheduledHours
		scheduledThemes[sess.ThemeID] = struct{}{}
	}
	free := capacity - planned
	if free < 0 {
		free = 0
	}

	agenda := &models.Agenda{
		PlanID:        plan.ID,
		Date:          scheduler.DateKey(day),
		CapacityHours: capacity,
		PlannedHours:  planned,
		FreeHours:     free,
		Sessions:      sessions,
	}
	agenda.Recommendations = s.recommend(ctx, plan.ID, scheduledThemes)
	return agenda, nil
}

// recommend surfaces the weakest themes that have no slot on the requested
// day. Recommendations are best-effort; lookup failures leave them empty.
func (s *AgendaService) recommend(ctx context.Context, planID string, scheduled map[string]struct{}) []models.AgendaRecommendation {
	stats, err := s.stats.ListByPlan(ctx, planID)
	if err != nil {
		s.logger.Warn("recommendations skipped", zap.String("plan_id", planID), zap.Error(err))
		return nil
	}
	themes, err := s.themes.ListByPlan(ctx, planID)
	if err != nil {
		s.logger.Warn("recommendations skipped", zap.String("plan_id", planID), zap.Error(err))
		return nil
	}
	names := make(map[string]string, len(themes))
	for _, theme := range themes {
		names[theme.ID] = theme.Name
	}

	candidates := make([]models.ThemeStat, 0, len(stats))
	for _, stat := range stats {
		if _, ok := scheduled[stat.ThemeID]; ok {
			continue
		}
		if stat.SuccessRate >= 1 {
			continue
		}
		candidates = append(candidates, stat)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SuccessRate != candidates[j].SuccessRate {
			return candidates[i].SuccessRate < candidates[j].SuccessRate
		}
		return candidates[i].ThemeID < candidates[j].ThemeID
	})
	if len(candidates) > maxAgendaRecommendations {
		candidates = candidates[:maxAgendaRecommendations]
	}

	recs := make([]models.AgendaRecommendation, 0, len(candidates))
	for _, stat := range candidates {
		recs = append(recs, models.AgendaRecommendation{
			ThemeID:     stat.ThemeID,
			ThemeName:   names[stat.ThemeID],
			SuccessRate: stat.SuccessRate,
			Reason:      fmt.Sprintf("recall success at %.0f%%, extra practice recommended", stat.SuccessRate*100),
		})
	}
	return recs
}
