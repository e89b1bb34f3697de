package recommendation

import (
	"fmt"
	"strings"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// Policy selects which ranked recommendations are surfaced.
type Policy string

const (
	// PolicyPriority takes the top of the ranking. Used for scheduled generation.
	PolicyPriority Policy = "priority"
	// PolicyDiversified spreads picks across purpose categories. Used for manual refresh.
	PolicyDiversified Policy = "diversified"
)

// maxPerCategory caps how many recommendations one category contributes
// during the diversified round-robin.
const maxPerCategory = 2

// ParsePolicy converts a query value into a Policy. Empty means priority.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPriority:
		return PolicyPriority, nil
	case PolicyDiversified:
		return PolicyDiversified, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// apply selects up to limit recommendations from ranked, which must already
// be in global order.
func (p Policy) apply(ranked []domain.Recommendation, limit int) []domain.Recommendation {
	if limit <= 0 || len(ranked) == 0 {
		return nil
	}
	if p != PolicyDiversified {
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return ranked
	}

	// Categories in order of their best recommendation.
	var order []string
	byCat := map[string][]int{}
	for i, r := range ranked {
		if _, ok := byCat[r.Category]; !ok {
			order = append(order, r.Category)
		}
		byCat[r.Category] = append(byCat[r.Category], i)
	}

	taken := make([]bool, len(ranked))
	out := make([]domain.Recommendation, 0, limit)
	for round := 0; round < maxPerCategory && len(out) < limit; round++ {
		for _, cat := range order {
			if len(out) == limit {
				break
			}
			if idx := byCat[cat]; round < len(idx) {
				out = append(out, ranked[idx[round]])
				taken[idx[round]] = true
			}
		}
	}
	for i, r := range ranked {
		if len(out) == limit {
			break
		}
		if !taken[i] {
			out = append(out, r)
		}
	}
	return out
}
