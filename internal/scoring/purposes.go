package scoring

// Purposes produced by the analyzer. Campaigns are matched against these
// names by the recommendation matcher.
const (
	PurposeInitialFollowUp  = "Initial Follow-Up After Appointment"
	PurposeSixMonthFollowUp = "First 6 Months Follow-Up"
	PurposeColdLead         = "Cold Lead - Spark Interest"
	PurposeKeepInTouch      = "Keep in Touch"
	PurposeWinBack          = "Win-Back Campaign"
	PurposeReferral         = "Referral Request"
)

// Categories group purposes for the diversified selection policy.
const (
	CategoryFollowUp = "follow_up"
	CategoryNurture  = "nurture"
	CategoryAdvocacy = "advocacy"
	CategoryOther    = "other"
)

var purposeCategory = map[string]string{
	PurposeInitialFollowUp:  CategoryFollowUp,
	PurposeSixMonthFollowUp: CategoryFollowUp,
	PurposeKeepInTouch:      CategoryNurture,
	PurposeColdLead:         CategoryNurture,
	PurposeWinBack:          CategoryNurture,
	PurposeReferral:         CategoryAdvocacy,
}

// purposeKeywords are matched case-insensitively against campaign text when
// no campaign declares the purpose verbatim.
var purposeKeywords = map[string][]string{
	PurposeInitialFollowUp:  {"initial follow", "after appointment", "post-appointment", "thank you"},
	PurposeSixMonthFollowUp: {"6 month", "six month", "first 6", "follow-up"},
	PurposeColdLead:         {"cold lead", "spark", "re-engage", "reengage"},
	PurposeKeepInTouch:      {"keep in touch", "check-in", "check in", "nurture"},
	PurposeWinBack:          {"win-back", "win back", "winback", "we miss you"},
	PurposeReferral:         {"referral", "refer a friend", "testimonial"},
}

// CategoryOf returns the category of a purpose, or CategoryOther.
func CategoryOf(purpose string) string {
	if c, ok := purposeCategory[purpose]; ok {
		return c
	}
	return CategoryOther
}

// KeywordsFor returns the match keywords for a purpose.
func KeywordsFor(purpose string) []string {
	return purposeKeywords[purpose]
}

// AllPurposes lists every purpose in trigger table order.
func AllPurposes() []string {
	return []string{
		PurposeInitialFollowUp,
		PurposeSixMonthFollowUp,
		PurposeColdLead,
		PurposeKeepInTouch,
		PurposeWinBack,
		PurposeReferral,
	}
}
