package recommendation

import (
	"strings"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/scoring"
)

// PurposeMatcher decides which campaigns serve an opportunity purpose.
type PurposeMatcher interface {
	CampaignsFor(purpose string, campaigns []domain.Campaign) []domain.Campaign
}

// KeywordMatcher prefers campaigns that declare the purpose verbatim and
// otherwise falls back to keyword matching on campaign text.
type KeywordMatcher struct {
	// Keywords overrides the built-in keyword list per purpose.
	Keywords map[string][]string
}

// CampaignsFor returns matching campaigns in input order.
func (m KeywordMatcher) CampaignsFor(purpose string, campaigns []domain.Campaign) []domain.Campaign {
	var exact []domain.Campaign
	for _, c := range campaigns {
		if strings.EqualFold(strings.TrimSpace(c.Purpose), purpose) {
			exact = append(exact, c)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	keywords := m.Keywords[purpose]
	if keywords == nil {
		keywords = scoring.KeywordsFor(purpose)
	}
	if len(keywords) == 0 {
		return nil
	}

	var out []domain.Campaign
	for _, c := range campaigns {
		text := strings.ToLower(c.Name + " " + c.Description + " " + c.Purpose)
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ExactMatcher only accepts campaigns whose Purpose equals the opportunity
// purpose. Use it once every campaign carries an explicit purpose.
type ExactMatcher struct{}

// CampaignsFor returns campaigns declaring the purpose.
func (ExactMatcher) CampaignsFor(purpose string, campaigns []domain.Campaign) []domain.Campaign {
	var out []domain.Campaign
	for _, c := range campaigns {
		if c.Purpose == purpose {
			out = append(out, c)
		}
	}
	return out
}
