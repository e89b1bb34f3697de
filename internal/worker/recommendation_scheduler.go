package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// UserLister enumerates the users the scheduler works for.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// TaskCreator is the automatic recommendation-to-task path.
type TaskCreator interface {
	CreateTasks(ctx context.Context, userID string, now time.Time) ([]*domain.AutomationTask, error)
}

// DayMarker claims a (user, day) slot once across every worker.
type DayMarker interface {
	MarkOnce(ctx context.Context, userID string, day time.Time) (bool, error)
}

// RecommendationScheduler runs the automatic task path once per UTC day per
// user, no earlier than the configured hour.
type RecommendationScheduler struct {
	users    UserLister
	tasks    TaskCreator
	marker   DayMarker
	runHour  int
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewRecommendationScheduler creates a scheduler checking every interval.
// A nil marker keeps the once-per-day bookkeeping in process.
func NewRecommendationScheduler(users UserLister, tasks TaskCreator, marker DayMarker, runHourUTC int, interval time.Duration) *RecommendationScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if marker == nil {
		marker = NewMemoryDayMarker()
	}
	return &RecommendationScheduler{
		users:    users,
		tasks:    tasks,
		marker:   marker,
		runHour:  runHourUTC,
		interval: interval,
		now:      time.Now,
		log:      logger.With("component", "recommendation_scheduler"),
	}
}

// Start begins the check loop.
func (s *RecommendationScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.log.Info("starting", "run_hour_utc", s.runHour, "interval", s.interval.String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.RunDue(s.ctx)
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for the current pass.
func (s *RecommendationScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("stopped")
}

// RunDue creates tasks for every user not yet served today, provided the
// run hour has passed. It returns the number of tasks created.
func (s *RecommendationScheduler) RunDue(ctx context.Context) int {
	now := s.now().UTC()
	if now.Hour() < s.runHour {
		return 0
	}
	users, err := s.users.ListUserIDs(ctx)
	if err != nil {
		s.log.Error("list users failed", "error", err.Error())
		return 0
	}

	day := quota.DayStart(now)
	created := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		first, err := s.marker.MarkOnce(ctx, userID, day)
		if err != nil {
			s.log.Warn("day marker failed", "user_id", userID, "error", err.Error())
			continue
		}
		if !first {
			continue
		}
		tasks, err := s.tasks.CreateTasks(ctx, userID, now)
		switch {
		case errors.Is(err, quota.ErrNearEmailLimit), errors.Is(err, quota.ErrTaskLimitReached):
			s.log.Info("auto tasks skipped", "user_id", userID, "reason", err.Error())
		case err != nil:
			s.log.Error("auto tasks failed", "user_id", userID, "error", err.Error())
		}
		created += len(tasks)
	}
	return created
}

// MemoryDayMarker is a DayMarker for a single worker process. It only
// remembers the current day; marks from earlier days are dropped when the
// day rolls over.
type MemoryDayMarker struct {
	mu   sync.Mutex
	day  time.Time
	seen map[string]bool
}

// NewMemoryDayMarker creates an empty marker.
func NewMemoryDayMarker() *MemoryDayMarker {
	return &MemoryDayMarker{seen: map[string]bool{}}
}

func (m *MemoryDayMarker) MarkOnce(_ context.Context, userID string, day time.Time) (bool, error) {
	day = quota.DayStart(day)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case day.Before(m.day):
		return false, nil
	case day.After(m.day):
		m.day = day
		m.seen = map[string]bool{}
	}
	if m.seen[userID] {
		return false, nil
	}
	m.seen[userID] = true
	return true, nil
}

// RedisDayMarker claims the slot with SETNX so only one worker per day
// creates tasks for a user.
type RedisDayMarker struct {
	client *redis.Client
}

// NewRedisDayMarker wraps a Redis client.
func NewRedisDayMarker(client *redis.Client) *RedisDayMarker {
	return &RedisDayMarker{client: client}
}

func (m *RedisDayMarker) MarkOnce(ctx context.Context, userID string, day time.Time) (bool, error) {
	ok, err := m.client.SetNX(ctx, dayMarkerKey(userID, day), 1, 26*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("day marker: %w", err)
	}
	return ok, nil
}

func dayMarkerKey(userID string, day time.Time) string {
	return "recs:auto:" + userID + ":" + day.UTC().Format("2006-01-02")
}
