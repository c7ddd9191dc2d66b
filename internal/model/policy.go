package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DetectionPolicy decides what happens to a page once it is judged phishing.
// The badge is set under every policy; the policy only adds to it.
type DetectionPolicy int

const (
	// PolicyBadge only sets the warning badge.
	PolicyBadge DetectionPolicy = iota

	// PolicyBlock replaces the page content with an in-page warning.
	PolicyBlock

	// PolicyAlert shows a notification but leaves the page alone.
	PolicyAlert

	// PolicyRedirect sends the tab to the warning page.
	PolicyRedirect
)

// String returns the configuration name of the policy.
func (p DetectionPolicy) String() string {
	switch p {
	case PolicyBadge:
		return "badge"
	case PolicyBlock:
		return "block"
	case PolicyAlert:
		return "alert"
	case PolicyRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// ParseDetectionPolicy converts a configuration name into a policy.
// An empty string selects PolicyBadge.
func ParseDetectionPolicy(s string) (DetectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "badge":
		return PolicyBadge, nil
	case "block":
		return PolicyBlock, nil
	case "alert":
		return PolicyAlert, nil
	case "redirect":
		return PolicyRedirect, nil
	default:
		return PolicyBadge, fmt.Errorf("unknown detection policy %q (want badge, block, alert or redirect)", s)
	}
}

// MarshalJSON encodes the policy by name.
func (p DetectionPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a policy from its name.
func (p *DetectionPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDetectionPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
