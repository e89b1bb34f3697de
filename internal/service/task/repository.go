package task

import (
	"context"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// Repository persists tasks. UpdateTask performs an optimistic version check.
type Repository interface {
	GetTask(ctx context.Context, id string) (*domain.AutomationTask, error)
	UpdateTask(ctx context.Context, t *domain.AutomationTask) error
	ListTasks(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.AutomationTask, error)
}

// Enroller performs the enrollments an approved task asks for.
type Enroller interface {
	Enroll(ctx context.Context, userID string, req enrollment.EnrollRequest, now time.Time) (*enrollment.EnrollResult, error)
}

// SendChecker refuses execution when the user is near the email limit.
type SendChecker interface {
	CheckSend(ctx context.Context, userID string, now time.Time) (quota.Quota, error)
}
