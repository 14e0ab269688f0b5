package domain

import (
	"fmt"
	"strings"
	"time"
)

// UnlockMethod selects how a user earns temporary access to a site.
type UnlockMethod uint8

const (
	// UnlockNone disallows temporary unlocks entirely.
	UnlockNone UnlockMethod = iota
	// UnlockTimer grants access for a fixed duration with no challenge.
	UnlockTimer
	// UnlockChallenge requires the user to pass a challenge first.
	UnlockChallenge
)

// String returns a stable string representation of the unlock method.
func (m UnlockMethod) String() string {
	switch m {
	case UnlockNone:
		return "none"
	case UnlockTimer:
		return "timer"
	case UnlockChallenge:
		return "challenge"
	default:
		return fmt.Sprintf("UnlockMethod(%d)", m)
	}
}

// ParseUnlockMethod converts a string into an UnlockMethod.
// Accepts: "none", "timer", "challenge" (case-insensitive).
func ParseUnlockMethod(s string) (UnlockMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return UnlockNone, nil
	case "timer":
		return UnlockTimer, nil
	case "challenge":
		return UnlockChallenge, nil
	default:
		return 0, fmt.Errorf("unsupported UnlockMethod: %q", s)
	}
}

// ChallengeSettings carries per-site parameters for the challenge
// unlock method. Opaque to the enforcement core; surfaced to the UI
// via GET_SITE_INFO.
type ChallengeSettings struct {
	Difficulty int    `json:"difficulty,omitempty"`
	Phrase     string `json:"phrase,omitempty"`
}

// Site is a named blocking target described by an ordered rule list.
//
// Invariants:
//   - ID is unique and immutable once created.
//   - Rules may be empty, in which case the site matches nothing.
type Site struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Rules             []Rule            `json:"rules"`
	UnlockMethod      UnlockMethod      `json:"unlockMethod"`
	ChallengeSettings ChallengeSettings `json:"challengeSettings,omitempty"`

	// AutoRelockAfter is the unlock duration in minutes. Nil means the
	// settings default applies.
	AutoRelockAfter *int      `json:"autoRelockAfter,omitempty"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Validate checks the Site for required fields and valid rules.
func (s Site) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("site id must not be empty")
	}
	if s.Name == "" {
		return fmt.Errorf("site name must not be empty")
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("site createdAt must be set")
	}
	for i, r := range s.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
