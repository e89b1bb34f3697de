package enrollment

import (
	"context"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// Repository is the store surface the engine needs.
//
// UpdateEnrollment must reject the write with domain.ErrVersionConflict
// unless e.Version matches the stored version, and bump e.Version on
// success. CreateEnrollment must reject a second open enrollment for the
// same contact and campaign with domain.ErrAlreadyExists.
type Repository interface {
	GetContact(ctx context.Context, id string) (*domain.Contact, error)
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error)

	GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error)
	CreateEnrollment(ctx context.Context, e *domain.Enrollment) error
	UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error
	ListOpenEnrollmentsForContact(ctx context.Context, userID, contactID string) ([]domain.Enrollment, error)
	ListActiveEnrollmentIDs(ctx context.Context) ([]string, error)

	AppendEmailLog(ctx context.Context, l *domain.EmailLog) error
	HasSentStep(ctx context.Context, enrollmentID string, step int) (bool, error)
	ListEmailLogs(ctx context.Context, enrollmentID string) ([]domain.EmailLog, error)
}

// SendGuard enforces the daily email budget.
type SendGuard interface {
	CheckSend(ctx context.Context, userID string, now time.Time) (quota.Quota, error)
	RecordSend(ctx context.Context, userID string, now time.Time)
}
