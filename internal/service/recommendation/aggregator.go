package recommendation

import (
	"sort"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/scoring"
)

const (
	customerBonus         = 20
	recentEngagementBonus = 15
	recentEngagementDays  = 30
)

// Limits bound the aggregation output. They come from the user's tier.
type Limits struct {
	MaxBatchSize       int
	MaxRecommendations int
}

// AggregateInput is everything Aggregate reads.
type AggregateInput struct {
	Opportunities map[string][]domain.Opportunity // by contact id
	Contacts      map[string]domain.Contact
	Enrollments   []domain.Enrollment
	Campaigns     []domain.Campaign
	Matcher       PurposeMatcher
	Limits        Limits
	Policy        Policy
	Now           time.Time
}

type candidate struct {
	contact domain.RecommendedContact
	opp     domain.Opportunity
}

// ScoreContact ranks a contact for one opportunity. Recency uses the same
// touch points as the analyzer, so a booked appointment counts as engagement.
func ScoreContact(c domain.Contact, o domain.Opportunity, now time.Time) int {
	score := c.HeatScore*o.Urgency.Multiplier() + o.Timing.Bonus()
	if c.IsCustomerLike() {
		score += customerBonus
	}
	if d := scoring.DaysSince(scoring.LastEngagementAt(&c), now); d >= 0 && d < recentEngagementDays {
		score += recentEngagementBonus
	}
	return score
}

// Aggregate groups opportunities by purpose, drops contacts already enrolled
// in a campaign serving that purpose, ranks what is left and applies the
// selection policy.
func Aggregate(in AggregateInput) []domain.Recommendation {
	matcher := in.Matcher
	if matcher == nil {
		matcher = KeywordMatcher{}
	}

	enrolled := make(map[string]bool, len(in.Enrollments))
	for _, e := range in.Enrollments {
		if e.Status.IsOpen() {
			enrolled[domain.PairKey(e.ContactID, e.CampaignID)] = true
		}
	}

	// Contact ids are visited in sorted order so output never depends on
	// map iteration.
	contactIDs := make([]string, 0, len(in.Opportunities))
	for id := range in.Opportunities {
		contactIDs = append(contactIDs, id)
	}
	sort.Strings(contactIDs)

	byPurpose := map[string]map[string]candidate{}
	var purposes []string
	for _, id := range contactIDs {
		contact, ok := in.Contacts[id]
		if !ok {
			contact = domain.Contact{ID: id}
		}
		if contact.Unsubscribed {
			continue
		}
		for _, o := range in.Opportunities[id] {
			cand := candidate{
				opp: o,
				contact: domain.RecommendedContact{
					ContactID: id,
					Name:      contact.FullName(),
					HeatScore: contact.HeatScore,
					Reason:    o.Reason,
					Urgency:   o.Urgency,
					Score:     ScoreContact(contact, o, in.Now),
				},
			}
			group, ok := byPurpose[o.Purpose]
			if !ok {
				group = map[string]candidate{}
				byPurpose[o.Purpose] = group
				purposes = append(purposes, o.Purpose)
			}
			// One entry per contact within a purpose.
			if prev, dup := group[id]; !dup || better(cand, prev) {
				group[id] = cand
			}
		}
	}

	var recs []domain.Recommendation
	for _, purpose := range purposes {
		served := matcher.CampaignsFor(purpose, in.Campaigns)

		var kept []candidate
		for _, cand := range byPurpose[purpose] {
			if enrolledInAny(enrolled, cand.contact.ContactID, served) {
				continue
			}
			kept = append(kept, cand)
		}
		if len(kept) == 0 {
			continue
		}

		sort.Slice(kept, func(i, j int) bool {
			a, b := kept[i].contact, kept[j].contact
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if a.HeatScore != b.HeatScore {
				return a.HeatScore > b.HeatScore
			}
			return a.ContactID < b.ContactID
		})
		if in.Limits.MaxBatchSize > 0 && len(kept) > in.Limits.MaxBatchSize {
			kept = kept[:in.Limits.MaxBatchSize]
		}

		rec := domain.Recommendation{
			Purpose:     purpose,
			Category:    scoring.CategoryOf(purpose),
			CampaignID:  firstActive(served),
			Contacts:    make([]domain.RecommendedContact, 0, len(kept)),
			GeneratedAt: in.Now,
		}
		heat := 0
		for _, cand := range kept {
			rec.Contacts = append(rec.Contacts, cand.contact)
			heat += cand.contact.HeatScore
			if cand.opp.Priority > rec.Priority {
				rec.Priority = cand.opp.Priority
			}
		}
		rec.ValueScore = float64(heat)/float64(len(kept)) + float64(len(kept)) + float64(rec.Priority*10)
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		if recs[i].ValueScore != recs[j].ValueScore {
			return recs[i].ValueScore > recs[j].ValueScore
		}
		return recs[i].Purpose < recs[j].Purpose
	})

	limit := in.Limits.MaxRecommendations
	if limit <= 0 {
		limit = len(recs)
	}
	return in.Policy.apply(recs, limit)
}

func better(a, b candidate) bool {
	if a.contact.Score != b.contact.Score {
		return a.contact.Score > b.contact.Score
	}
	return a.opp.Priority > b.opp.Priority
}

func enrolledInAny(enrolled map[string]bool, contactID string, campaigns []domain.Campaign) bool {
	for _, c := range campaigns {
		if enrolled[domain.PairKey(contactID, c.ID)] {
			return true
		}
	}
	return false
}

func firstActive(campaigns []domain.Campaign) string {
	for i := range campaigns {
		if campaigns[i].IsActive() {
			return campaigns[i].ID
		}
	}
	return ""
}
