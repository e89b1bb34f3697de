package recommendation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
	"github.com/ignite/enrollment-engine/internal/scoring"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// Service generates recommendations and creates automation tasks from them.
type Service struct {
	repo    Repository
	quota   QuotaSource
	matcher PurposeMatcher
	cache   Cache    // optional
	archive Archiver // optional
	log     *logger.Logger
}

// NewService creates a recommendation service. A nil matcher uses KeywordMatcher.
func NewService(repo Repository, q QuotaSource, matcher PurposeMatcher) *Service {
	if matcher == nil {
		matcher = KeywordMatcher{}
	}
	return &Service{
		repo:    repo,
		quota:   q,
		matcher: matcher,
		log:     logger.With("component", "recommendation"),
	}
}

// SetCache enables per-day snapshot caching.
func (s *Service) SetCache(c Cache) { s.cache = c }

// SetArchiver enables snapshot archiving.
func (s *Service) SetArchiver(a Archiver) { s.archive = a }

// Generate returns today's recommendations for the user. A cached snapshot
// is reused unless refresh is set. Generation is refused when the user is
// near the email limit.
func (s *Service) Generate(ctx context.Context, userID string, policy Policy, now time.Time, refresh bool) ([]domain.Recommendation, error) {
	q, err := s.quota.ComputeQuota(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("compute quota: %w", err)
	}
	if q.IsNearEmailLimit {
		return nil, quota.ErrNearEmailLimit
	}
	return s.generate(ctx, userID, policy, q, now, refresh)
}

func (s *Service) generate(ctx context.Context, userID string, policy Policy, q quota.Quota, now time.Time, refresh bool) ([]domain.Recommendation, error) {
	key := CacheKey(userID, policy, now)
	if s.cache != nil && !refresh {
		recs, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("recommendation cache read failed", "user_id", userID, "error", err.Error())
		} else if ok {
			return recs, nil
		}
	}

	contacts, err := s.repo.ListContacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	campaigns, err := s.repo.ListCampaigns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	enrollments, err := s.repo.ListOpenEnrollments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	byID := make(map[string]domain.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	recs := Aggregate(AggregateInput{
		Opportunities: scoring.AnalyzeAll(contacts, now),
		Contacts:      byID,
		Enrollments:   enrollments,
		Campaigns:     campaigns,
		Matcher:       s.matcher,
		Limits: Limits{
			MaxBatchSize:       q.Tier.MaxBatchSize,
			MaxRecommendations: q.Tier.MaxDailyAutomationSuggestions,
		},
		Policy: policy,
		Now:    now,
	})

	s.log.Info("recommendations generated",
		"user_id", userID, "policy", string(policy), "contacts", len(contacts), "recommendations", len(recs))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, recs, q.ResetsAt.Sub(now)); err != nil {
			s.log.Warn("recommendation cache write failed", "user_id", userID, "error", err.Error())
		}
	}
	if s.archive != nil {
		if err := s.archive.Save(ctx, userID, now, policy, recs); err != nil {
			s.log.Warn("recommendation archive failed", "user_id", userID, "error", err.Error())
		}
	}
	return recs, nil
}

// History returns the snapshot generated for the user on day. Today's cached
// snapshot is served first; past days come from the archive. A day with no
// snapshot returns domain.ErrNotFound.
func (s *Service) History(ctx context.Context, userID string, policy Policy, day time.Time) ([]domain.Recommendation, error) {
	if s.cache != nil {
		recs, ok, err := s.cache.Get(ctx, CacheKey(userID, policy, day))
		if err != nil {
			s.log.Warn("recommendation cache read failed", "user_id", userID, "error", err.Error())
		} else if ok {
			return recs, nil
		}
	}
	if s.archive == nil {
		return nil, ErrHistoryUnavailable
	}
	recs, err := s.archive.Load(ctx, userID, day, policy)
	if err != nil {
		return nil, fmt.Errorf("load archived recommendations: %w", err)
	}
	if recs == nil {
		return nil, domain.ErrNotFound
	}
	return recs, nil
}

// CreateTasks runs the automatic path: generate with the priority policy and
// turn each recommendation that has a campaign into a pending task, up to
// the remaining daily task budget.
func (s *Service) CreateTasks(ctx context.Context, userID string, now time.Time) ([]*domain.AutomationTask, error) {
	q, err := s.quota.ComputeQuota(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("compute quota: %w", err)
	}
	if q.IsNearEmailLimit {
		return nil, quota.ErrNearEmailLimit
	}
	if q.RemainingTasks <= 0 {
		return nil, quota.ErrTaskLimitReached
	}

	recs, err := s.generate(ctx, userID, PolicyPriority, q, now, false)
	if err != nil {
		return nil, err
	}

	var created []*domain.AutomationTask
	for _, rec := range recs {
		if len(created) >= q.RemainingTasks {
			break
		}
		if rec.CampaignID == "" || len(rec.Contacts) == 0 {
			continue
		}
		task := taskFor(userID, rec, now)
		if err := s.repo.CreateTask(ctx, task); err != nil {
			return created, fmt.Errorf("create task for %q: %w", rec.Purpose, err)
		}
		created = append(created, task)
	}
	s.quota.RecordTask(ctx, userID, now, len(created))

	s.log.Info("automation tasks created", "user_id", userID, "tasks", len(created))
	return created, nil
}

func taskFor(userID string, rec domain.Recommendation, now time.Time) *domain.AutomationTask {
	ids := make([]string, 0, len(rec.Contacts))
	for _, c := range rec.Contacts {
		ids = append(ids, c.ContactID)
	}
	noun := "contacts"
	if len(ids) == 1 {
		noun = "contact"
	}
	return &domain.AutomationTask{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   domain.TaskCampaignEnrollment,
		Status: domain.TaskPending,
		Title:  fmt.Sprintf("Enroll %d %s in %s", len(ids), noun, rec.Purpose),
		Payload: domain.TaskPayload{
			CampaignID: rec.CampaignID,
			Purpose:    rec.Purpose,
			ContactIDs: ids,
			Reason:     fmt.Sprintf("priority %d, value score %.1f", rec.Priority, rec.ValueScore),
		},
		CreatedAt: now,
	}
}
