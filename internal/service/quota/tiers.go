package quota

import "strings"

// Tier bounds how much automation a user receives per day.
type Tier struct {
	Name                          string `json:"name"`
	MaxDailyEmails                int    `json:"max_daily_emails"` // inclusive upper bound, 0 means unbounded
	MaxDailyAutomationSuggestions int    `json:"max_daily_automation_suggestions"`
	MaxBatchSize                  int    `json:"max_batch_size"`
}

// Tiers in ascending order of daily email limit.
var Tiers = []Tier{
	{Name: "Starter", MaxDailyEmails: 100, MaxDailyAutomationSuggestions: 3, MaxBatchSize: 10},
	{Name: "Professional", MaxDailyEmails: 500, MaxDailyAutomationSuggestions: 5, MaxBatchSize: 25},
	{Name: "Business", MaxDailyEmails: 2000, MaxDailyAutomationSuggestions: 8, MaxBatchSize: 50},
	{Name: "Enterprise", MaxDailyEmails: 0, MaxDailyAutomationSuggestions: 12, MaxBatchSize: 100},
}

// TierFor picks the first tier whose email bound covers the limit.
func TierFor(dailyEmailLimit int) Tier {
	for _, t := range Tiers {
		if t.MaxDailyEmails == 0 || dailyEmailLimit <= t.MaxDailyEmails {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// DefaultDailyLimit applies to providers missing from ProviderDailyLimits.
const DefaultDailyLimit = 100

// ProviderDailyLimits are the sending caps of the mailbox providers users
// connect.
var ProviderDailyLimits = map[string]int{
	"gmail":            500,
	"google_workspace": 2000,
	"outlook":          300,
	"office365":        10000,
	"zoho":             250,
	"sendgrid":         100,
	"ses":              50000,
}

// providerLimit resolves a provider's cap, letting overrides win over the
// built-in table.
func providerLimit(provider string, overrides map[string]int, fallback int) int {
	p := strings.ToLower(strings.TrimSpace(provider))
	if n, ok := overrides[p]; ok && n > 0 {
		return n
	}
	if n, ok := ProviderDailyLimits[p]; ok {
		return n
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultDailyLimit
}
