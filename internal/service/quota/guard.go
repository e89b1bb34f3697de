package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
)

// DefaultNearLimitRatio is the share of the daily email limit at which
// automation stops.
const DefaultNearLimitRatio = 0.8

// Quota is a point-in-time view of a user's daily budget.
type Quota struct {
	UserID               string    `json:"user_id"`
	Tier                 Tier      `json:"tier"`
	DailyEmailLimit      int       `json:"daily_email_limit"`
	TasksToday           int       `json:"tasks_today"`
	EmailsSentToday      int       `json:"emails_sent_today"`
	RemainingTasks       int       `json:"remaining_tasks"`
	RemainingEmails      int       `json:"remaining_emails"`
	CanCreateMoreTasks   bool      `json:"can_create_more_tasks"`
	EmailCapacityUsedPct float64   `json:"email_capacity_used_pct"`
	IsNearEmailLimit     bool      `json:"is_near_email_limit"`
	DayStart             time.Time `json:"day_start"`
	ResetsAt             time.Time `json:"resets_at"`
}

// Options tune the guard. Zero values take the package defaults.
type Options struct {
	NearLimitRatio    float64
	DefaultDailyLimit int
	ProviderLimits    map[string]int
}

// Guard computes quotas and enforces throttles.
type Guard struct {
	settings SettingsSource
	counter  Counter
	opts     Options
	log      *logger.Logger
}

// NewGuard creates a guard over the given settings and usage counter.
func NewGuard(settings SettingsSource, counter Counter, opts Options) *Guard {
	if opts.NearLimitRatio <= 0 || opts.NearLimitRatio > 1 {
		opts.NearLimitRatio = DefaultNearLimitRatio
	}
	if opts.DefaultDailyLimit <= 0 {
		opts.DefaultDailyLimit = DefaultDailyLimit
	}
	return &Guard{
		settings: settings,
		counter:  counter,
		opts:     opts,
		log:      logger.With("component", "quota"),
	}
}

// DayStart returns UTC midnight of the day containing now.
func DayStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyEmailLimit resolves the user's email limit: a custom limit wins,
// then the provider's cap.
func (g *Guard) DailyEmailLimit(s *domain.UserSettings) int {
	if s == nil {
		return g.opts.DefaultDailyLimit
	}
	if s.CustomDailyEmailLimit > 0 {
		return s.CustomDailyEmailLimit
	}
	return providerLimit(s.EmailProvider, g.opts.ProviderLimits, g.opts.DefaultDailyLimit)
}

// ComputeQuota evaluates the user's budget for the UTC day containing now.
func (g *Guard) ComputeQuota(ctx context.Context, userID string, now time.Time) (Quota, error) {
	settings, err := g.settings.GetUserSettings(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Quota{}, fmt.Errorf("load user settings: %w", err)
	}

	start := DayStart(now)
	emails, err := g.counter.CountEmailsSince(ctx, userID, start)
	if err != nil {
		return Quota{}, fmt.Errorf("count emails: %w", err)
	}
	tasks, err := g.counter.CountTasksSince(ctx, userID, start)
	if err != nil {
		return Quota{}, fmt.Errorf("count tasks: %w", err)
	}

	return g.evaluate(userID, g.DailyEmailLimit(settings), emails, tasks, start), nil
}

func (g *Guard) evaluate(userID string, limit, emails, tasks int, start time.Time) Quota {
	tier := TierFor(limit)
	q := Quota{
		UserID:          userID,
		Tier:            tier,
		DailyEmailLimit: limit,
		TasksToday:      tasks,
		EmailsSentToday: emails,
		RemainingTasks:  max(0, tier.MaxDailyAutomationSuggestions-tasks),
		RemainingEmails: max(0, limit-emails),
		DayStart:        start,
		ResetsAt:        start.Add(24 * time.Hour),
	}
	if limit > 0 {
		q.EmailCapacityUsedPct = float64(emails) / float64(limit) * 100
		q.IsNearEmailLimit = float64(emails) >= g.opts.NearLimitRatio*float64(limit)
	} else {
		q.IsNearEmailLimit = true
	}
	q.CanCreateMoreTasks = q.RemainingTasks > 0 && !q.IsNearEmailLimit
	return q
}

// CheckSend refuses dispatch when the user is near the email limit.
func (g *Guard) CheckSend(ctx context.Context, userID string, now time.Time) (Quota, error) {
	q, err := g.ComputeQuota(ctx, userID, now)
	if err != nil {
		return q, err
	}
	if q.IsNearEmailLimit {
		return q, ErrNearEmailLimit
	}
	return q, nil
}

// CheckSuggest refuses recommendation generation near the email limit and
// reports when no automation tasks remain.
func (g *Guard) CheckSuggest(ctx context.Context, userID string, now time.Time) (Quota, error) {
	q, err := g.ComputeQuota(ctx, userID, now)
	if err != nil {
		return q, err
	}
	if q.IsNearEmailLimit {
		return q, ErrNearEmailLimit
	}
	if q.RemainingTasks <= 0 {
		return q, ErrTaskLimitReached
	}
	return q, nil
}

// RecordSend counts one dispatched email when the counter tracks usage
// incrementally. Stores that count from the email log need no call.
func (g *Guard) RecordSend(ctx context.Context, userID string, now time.Time) {
	if r, ok := g.counter.(Recorder); ok {
		if err := r.RecordEmails(ctx, userID, DayStart(now), 1); err != nil {
			g.log.Warn("record email usage failed", "user_id", userID, "error", err.Error())
		}
	}
}

// RecordTask counts created automation tasks.
func (g *Guard) RecordTask(ctx context.Context, userID string, now time.Time, n int) {
	if n <= 0 {
		return
	}
	if r, ok := g.counter.(Recorder); ok {
		if err := r.RecordTasks(ctx, userID, DayStart(now), n); err != nil {
			g.log.Warn("record task usage failed", "user_id", userID, "error", err.Error())
		}
	}
}
