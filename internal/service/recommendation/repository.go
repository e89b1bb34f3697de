package recommendation

import (
	"context"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// Repository is the store surface the service reads and writes.
type Repository interface {
	ListContacts(ctx context.Context, userID string) ([]domain.Contact, error)
	ListCampaigns(ctx context.Context, userID string) ([]domain.Campaign, error)
	ListOpenEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error)
	CreateTask(ctx context.Context, t *domain.AutomationTask) error
}

// QuotaSource computes and records the user's daily budget.
type QuotaSource interface {
	ComputeQuota(ctx context.Context, userID string, now time.Time) (quota.Quota, error)
	RecordTask(ctx context.Context, userID string, now time.Time, n int)
}

// Cache stores generated recommendations for the rest of the day.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.Recommendation, bool, error)
	Set(ctx context.Context, key string, recs []domain.Recommendation, ttl time.Duration) error
}

// Archiver keeps a copy of every generated snapshot. Load returns nil for
// a day with no snapshot.
type Archiver interface {
	Save(ctx context.Context, userID string, day time.Time, policy Policy, recs []domain.Recommendation) error
	Load(ctx context.Context, userID string, day time.Time, policy Policy) ([]domain.Recommendation, error)
}
