// Package scoring derives engagement opportunities from contact state.
//
// Analyze is pure: the same contact and clock always yield the same
// opportunities in the same order. Missing timestamps are treated as
// infinitely old (NeverDays), so a contact with no recorded appointment
// still qualifies for cold-lead and win-back outreach.
package scoring

import (
	"fmt"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// NeverDays is the day count used for a timestamp that was never recorded.
const NeverDays = 1 << 20

const day = 24 * time.Hour

// DaysSince returns whole days elapsed from t to now, floored. A nil t
// yields NeverDays; a t in the future yields a negative count.
func DaysSince(t *time.Time, now time.Time) int {
	if t == nil || t.IsZero() {
		return NeverDays
	}
	d := now.Sub(*t)
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// LastContactAt is the last outbound touch, falling back to last engagement.
func LastContactAt(c *domain.Contact) *time.Time {
	if c.LastContact != nil && !c.LastContact.IsZero() {
		return c.LastContact
	}
	return c.LastEngagement
}

// LastEngagementAt is the most recent of last engagement, last contact and
// appointment date.
func LastEngagementAt(c *domain.Contact) *time.Time {
	var latest *time.Time
	for _, t := range []*time.Time{c.LastEngagement, c.LastContact, c.AppointmentDate} {
		if t == nil || t.IsZero() {
			continue
		}
		if latest == nil || t.After(*latest) {
			latest = t
		}
	}
	return latest
}

// Analyze returns every opportunity triggered by the contact, in trigger
// table order. Triggers are not mutually exclusive.
func Analyze(c domain.Contact, now time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	add := func(purpose string, priority int, u domain.Urgency, t domain.Timing, reason string) {
		out = append(out, domain.Opportunity{
			ContactID: c.ID,
			Purpose:   purpose,
			Priority:  priority,
			Urgency:   u,
			Timing:    t,
			Reason:    reason,
		})
	}

	sinceAppt := DaysSince(c.AppointmentDate, now)
	switch {
	case sinceAppt >= 1 && sinceAppt <= 7:
		add(PurposeInitialFollowUp, 10, domain.UrgencyHigh, domain.TimingImmediate,
			daysReason(sinceAppt, "since appointment"))
	case sinceAppt >= 30 && sinceAppt <= 180:
		add(PurposeSixMonthFollowUp, 9, domain.UrgencyMedium, domain.TimingThisMonth,
			daysReason(sinceAppt, "since appointment"))
	case sinceAppt >= 365:
		add(PurposeColdLead, 7, domain.UrgencyLow, domain.TimingLater,
			daysReason(sinceAppt, "since appointment"))
	}

	sinceContact := DaysSince(LastContactAt(&c), now)
	switch {
	case c.HeatScore >= 20 && sinceContact > 14:
		add(PurposeKeepInTouch, 8, domain.UrgencyHigh, domain.TimingThisWeek,
			fmt.Sprintf("heat score %d, %s", c.HeatScore, daysReason(sinceContact, "since last contact")))
	case c.HeatScore >= 10 && c.HeatScore < 20 && sinceContact > 30:
		add(PurposeKeepInTouch, 6, domain.UrgencyMedium, domain.TimingThisMonth,
			fmt.Sprintf("heat score %d, %s", c.HeatScore, daysReason(sinceContact, "since last contact")))
	}

	sinceEngaged := DaysSince(LastEngagementAt(&c), now)
	if c.HeatScore < 10 && sinceEngaged > 180 {
		add(PurposeWinBack, 5, domain.UrgencyLow, domain.TimingLater,
			fmt.Sprintf("heat score %d, %s", c.HeatScore, daysReason(sinceEngaged, "since last engagement")))
	}

	if c.IsCustomerLike() && c.HeatScore >= 20 {
		add(PurposeReferral, 8, domain.UrgencyMedium, domain.TimingThisMonth,
			fmt.Sprintf("%s with heat score %d", c.Status, c.HeatScore))
	}

	return out
}

// AnalyzeAll runs Analyze over every contact and keys the non-empty results
// by contact id.
func AnalyzeAll(contacts []domain.Contact, now time.Time) map[string][]domain.Opportunity {
	out := make(map[string][]domain.Opportunity, len(contacts))
	for _, c := range contacts {
		if ops := Analyze(c, now); len(ops) > 0 {
			out[c.ID] = ops
		}
	}
	return out
}

func daysReason(days int, what string) string {
	if days >= NeverDays {
		switch what {
		case "since appointment":
			return "no recorded appointment"
		case "since last contact":
			return "no recorded contact"
		default:
			return "no recorded engagement"
		}
	}
	if days == 1 {
		return "1 day " + what
	}
	return fmt.Sprintf("%d days %s", days, what)
}
