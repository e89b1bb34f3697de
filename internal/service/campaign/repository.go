package campaign

import (
	"context"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// Repository defines the data access contract for campaigns and templates.
// Implementations must be safe for concurrent use.
type Repository interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, userID string) ([]domain.Campaign, error)
	SaveCampaign(ctx context.Context, c *domain.Campaign) error
	DeleteCampaign(ctx context.Context, id string) error

	GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error)
	SaveTemplate(ctx context.Context, t *domain.EmailTemplate) error

	// ListOpenEnrollments returns the user's pending and active enrollments.
	ListOpenEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Purpose     string            `json:"purpose"`
	Steps       []domain.Step     `json:"steps"`
	Fields      map[string]string `json:"fields"`
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Purpose     *string            `json:"purpose"`
	Steps       *[]domain.Step     `json:"steps"`
	Fields      *map[string]string `json:"fields"`
}

// TemplateInput holds the fields of a template.
type TemplateInput struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}
