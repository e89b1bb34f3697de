package task

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
)

// Service reviews and executes automation tasks.
type Service struct {
	repo     Repository
	enroller Enroller
	guard    SendChecker
	log      *logger.Logger
}

// NewService creates a task service.
func NewService(repo Repository, enroller Enroller, guard SendChecker) *Service {
	return &Service{
		repo:     repo,
		enroller: enroller,
		guard:    guard,
		log:      logger.With("component", "task"),
	}
}

// Get returns a task owned by userID.
func (s *Service) Get(ctx context.Context, userID, taskID string) (*domain.AutomationTask, error) {
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

// List returns the user's tasks, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.AutomationTask, error) {
	return s.repo.ListTasks(ctx, userID, status)
}

// Reject marks a pending task rejected.
func (s *Service) Reject(ctx context.Context, userID, taskID, reviewer string, now time.Time) (*domain.AutomationTask, error) {
	t, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TaskPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, domain.TaskRejected)
	}
	t.Status = domain.TaskRejected
	t.ReviewedAt = &now
	t.ReviewedBy = reviewer
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("reject task: %w", err)
	}
	s.log.Info("task rejected", "task_id", t.ID, "reviewer", reviewer)
	return t, nil
}

// Approve marks a pending task approved and executes it. A quota refusal
// leaves the task approved with nothing enrolled and returns the refusal.
func (s *Service) Approve(ctx context.Context, userID, taskID, reviewer string, now time.Time) (*domain.AutomationTask, error) {
	t, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TaskPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, domain.TaskApproved)
	}
	t.Status = domain.TaskApproved
	t.ReviewedAt = &now
	t.ReviewedBy = reviewer
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("approve task: %w", err)
	}

	if _, err := s.guard.CheckSend(ctx, userID, now); err != nil {
		s.log.Warn("approved task not executed", "task_id", t.ID, "error", err.Error())
		return t, err
	}
	return s.execute(ctx, t, now)
}

// Execute runs an approved task. Used to retry tasks left approved by a
// quota refusal.
func (s *Service) Execute(ctx context.Context, userID, taskID string, now time.Time) (*domain.AutomationTask, error) {
	t, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TaskApproved {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, domain.TaskExecuted)
	}
	if _, err := s.guard.CheckSend(ctx, userID, now); err != nil {
		return t, err
	}
	return s.execute(ctx, t, now)
}

func (s *Service) execute(ctx context.Context, t *domain.AutomationTask, now time.Time) (*domain.AutomationTask, error) {
	result := &domain.TaskResult{}
	for _, contactID := range t.Payload.ContactIDs {
		res, err := s.enroller.Enroll(ctx, t.UserID, enrollment.EnrollRequest{
			ContactID:  contactID,
			CampaignID: t.Payload.CampaignID,
			DelayDays:  t.Payload.DelayDays,
			Reason:     "task " + t.ID,
		}, now)
		switch {
		case err != nil:
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", contactID, err))
		case res.Queued:
			result.Queued++
		default:
			result.Enrolled++
		}
	}

	t.Result = result
	t.ExecutedAt = &now
	if result.Enrolled+result.Queued > 0 {
		t.Status = domain.TaskExecuted
	} else {
		t.Status = domain.TaskFailed
	}
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("record task result: %w", err)
	}

	s.log.Info("task executed",
		"task_id", t.ID, "status", string(t.Status),
		"enrolled", result.Enrolled, "queued", result.Queued, "skipped", result.Skipped)
	return t, nil
}
