package api

import (
	"context"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
	"github.com/ignite/enrollment-engine/internal/service/campaign"
	"github.com/ignite/enrollment-engine/internal/service/engagement"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
	"github.com/ignite/enrollment-engine/internal/service/quota"
	"github.com/ignite/enrollment-engine/internal/service/recommendation"
)

// QuotaReader reports a user's daily budget.
type QuotaReader interface {
	ComputeQuota(ctx context.Context, userID string, now time.Time) (quota.Quota, error)
}

// Recommender builds recommendations and the automatic task batch.
type Recommender interface {
	Generate(ctx context.Context, userID string, policy recommendation.Policy, now time.Time, refresh bool) ([]domain.Recommendation, error)
	CreateTasks(ctx context.Context, userID string, now time.Time) ([]*domain.AutomationTask, error)
	History(ctx context.Context, userID string, policy recommendation.Policy, day time.Time) ([]domain.Recommendation, error)
}

// TaskReviewer is the human approval boundary for automation tasks.
type TaskReviewer interface {
	Get(ctx context.Context, userID, taskID string) (*domain.AutomationTask, error)
	List(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.AutomationTask, error)
	Approve(ctx context.Context, userID, taskID, reviewer string, now time.Time) (*domain.AutomationTask, error)
	Reject(ctx context.Context, userID, taskID, reviewer string, now time.Time) (*domain.AutomationTask, error)
	Execute(ctx context.Context, userID, taskID string, now time.Time) (*domain.AutomationTask, error)
}

// Enrollments is the enrollment engine surface used by the API.
type Enrollments interface {
	Enroll(ctx context.Context, userID string, req enrollment.EnrollRequest, now time.Time) (*enrollment.EnrollResult, error)
	Get(ctx context.Context, userID, enrollmentID string) (*domain.Enrollment, error)
	Logs(ctx context.Context, userID, enrollmentID string) ([]domain.EmailLog, error)
	Cancel(ctx context.Context, userID, enrollmentID, reason string, now time.Time) (*domain.Enrollment, error)
	Tick(ctx context.Context, now time.Time) (*enrollment.TickReport, error)
}

// CampaignManager authors campaigns and templates.
type CampaignManager interface {
	Get(ctx context.Context, userID, id string) (*domain.Campaign, error)
	List(ctx context.Context, userID string, status domain.CampaignStatus) ([]domain.Campaign, error)
	Create(ctx context.Context, userID string, in campaign.CreateInput, now time.Time) (*domain.Campaign, error)
	Update(ctx context.Context, userID, id string, u campaign.UpdateFields, now time.Time) (*domain.Campaign, error)
	SetStatus(ctx context.Context, userID, id string, to domain.CampaignStatus, now time.Time) (*domain.Campaign, error)
	Delete(ctx context.Context, userID, id string) error
	GetTemplate(ctx context.Context, userID, id string) (*domain.EmailTemplate, error)
	SaveTemplate(ctx context.Context, userID, id string, in campaign.TemplateInput, now time.Time) (*domain.EmailTemplate, error)
}

// EngagementRecorder applies provider events to contacts.
type EngagementRecorder interface {
	Record(ctx context.Context, ev engagement.Event) (*domain.Contact, error)
}

// Deps are the services behind the handlers. Nil services leave their
// routes unregistered.
type Deps struct {
	Quota       QuotaReader
	Recommender Recommender
	Tasks       TaskReviewer
	Enrollments Enrollments
	Engagement  EngagementRecorder
	Campaigns   CampaignManager
	Health      *HealthChecker
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	deps Deps
	now  func() time.Time
	log  *logger.Logger
}

// NewHandlers creates handlers over deps.
func NewHandlers(deps Deps) *Handlers {
	if deps.Health == nil {
		deps.Health = NewHealthChecker(nil, nil)
	}
	return &Handlers{
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logger.With("component", "api"),
	}
}
