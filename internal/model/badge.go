package model

// Badge is the small per-tab indicator reflecting the last known verdict.
// The zero value is a cleared badge.
type Badge struct {
	// Text is the badge label; empty means no badge.
	Text string `json:"text"`

	// Color is the badge background color in CSS hex form.
	Color string `json:"color,omitempty"`
}

// Badge presets.
const (
	WarningBadgeText  = "!"
	WarningBadgeColor = "#FF0000"
)

// WarningBadge returns the badge shown on a tab judged phishing.
func WarningBadge() Badge {
	return Badge{Text: WarningBadgeText, Color: WarningBadgeColor}
}

// Cleared reports whether the badge shows nothing.
func (b Badge) Cleared() bool {
	return b.Text == ""
}

// BadgeFor returns the badge for a verdict.
func BadgeFor(isPhishing bool) Badge {
	if isPhishing {
		return WarningBadge()
	}
	return Badge{}
}
