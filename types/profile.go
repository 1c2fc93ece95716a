package types

// Profile selects the lint profile the backend validates against.
type Profile string

// Known lint profiles. The backend accepts others; these are the ones the
// CLI can describe.
const (
	ProfileMinimal    Profile = "minimal"
	ProfileBasic      Profile = "basic"
	ProfileSafety     Profile = "safety"
	ProfileTest       Profile = "test"
	ProfileProduction Profile = "production"
)

// DefaultProfile is used when the caller does not choose one.
const DefaultProfile = ProfileBasic

// ProfileInfo describes a known profile for the CLI catalog.
type ProfileInfo struct {
	Name        Profile `json:"name"`
	Description string  `json:"description"`
}

// KnownProfiles returns the profile catalog in strictness order.
func KnownProfiles() []ProfileInfo {
	return []ProfileInfo{
		{ProfileMinimal, "syntax and undefined-variable checks only"},
		{ProfileBasic, "the default ansible-lint ruleset"},
		{ProfileSafety, "basic plus command-injection and permission rules"},
		{ProfileTest, "basic plus idempotency and check-mode rules"},
		{ProfileProduction, "the full ruleset, warnings treated as errors"},
	}
}

// IsKnown reports whether p is in the catalog. Unknown profiles are still
// forwarded to the backend; the CLI only uses this to warn.
func (p Profile) IsKnown() bool {
	for _, info := range KnownProfiles() {
		if info.Name == p {
			return true
		}
	}
	return false
}
