package domain

import "time"

// Urgency ranks how soon an opportunity should be acted on.
type Urgency string

const (
	UrgencyHigh   Urgency = "HIGH"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyLow    Urgency = "LOW"
)

// Multiplier weights a contact's heat score by urgency.
func (u Urgency) Multiplier() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	default:
		return 1
	}
}

// Timing is the window in which an opportunity should be acted on.
type Timing string

const (
	TimingImmediate Timing = "IMMEDIATE"
	TimingThisWeek  Timing = "THIS_WEEK"
	TimingThisMonth Timing = "THIS_MONTH"
	TimingLater     Timing = "LATER"
)

// Bonus is the score bonus granted for acting within the timing window.
func (t Timing) Bonus() int {
	switch t {
	case TimingImmediate:
		return 50
	case TimingThisWeek:
		return 25
	default:
		return 0
	}
}

// Opportunity is one triggered reason to enroll a contact in a campaign of
// the given purpose.
type Opportunity struct {
	ContactID string  `json:"contact_id"`
	Purpose   string  `json:"purpose"`
	Priority  int     `json:"priority"`
	Urgency   Urgency `json:"urgency"`
	Timing    Timing  `json:"timing"`
	Reason    string  `json:"reason"`
}

// RecommendedContact is a ranked contributor to a recommendation.
type RecommendedContact struct {
	ContactID string  `json:"contact_id"`
	Name      string  `json:"name"`
	HeatScore int     `json:"heat_score"`
	Reason    string  `json:"reason"`
	Urgency   Urgency `json:"urgency"`
	Score     int     `json:"score"`
}

// Recommendation groups contacts that should be enrolled in a campaign of
// one purpose. Recommendations are ephemeral and regenerated daily.
type Recommendation struct {
	Purpose     string               `json:"purpose"`
	Category    string               `json:"category"`
	Priority    int                  `json:"priority"`
	CampaignID  string               `json:"campaign_id,omitempty"`
	Contacts    []RecommendedContact `json:"contacts"`
	ValueScore  float64              `json:"value_score"`
	GeneratedAt time.Time            `json:"generated_at"`
}
