package quota

import (
	"context"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// SettingsSource loads the per-user settings that determine the tier.
type SettingsSource interface {
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
}

// Counter reports usage since a point in time. Every store implements it
// from its email log and task records.
type Counter interface {
	CountEmailsSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Recorder is implemented by counters that track usage incrementally.
type Recorder interface {
	RecordEmails(ctx context.Context, userID string, day time.Time, n int) error
	RecordTasks(ctx context.Context, userID string, day time.Time, n int) error
}
