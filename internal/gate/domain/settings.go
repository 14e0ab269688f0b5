package domain

import "time"

// DefaultUnlockMinutes applies when neither the site nor the stored
// settings specify an unlock duration.
const DefaultUnlockMinutes = 60

// Settings are the user-tunable knobs that are not per-site.
type Settings struct {
	// BlockedPage is the locator tabs are redirected to on a block.
	// The original URL and site id are appended as query parameters.
	BlockedPage string `json:"blockedPage"`

	// DefaultUnlockMinutes is used when a grant request carries no
	// duration and the site has no AutoRelockAfter.
	DefaultUnlockMinutes int `json:"defaultUnlockMinutes"`

	// NotifyOnRelock controls the best-effort relock notification.
	NotifyOnRelock bool `json:"notifyOnRelock"`
}

// DefaultSettings returns the settings used when none are stored.
func DefaultSettings() Settings {
	return Settings{
		BlockedPage:          "haltgate://blocked",
		DefaultUnlockMinutes: DefaultUnlockMinutes,
		NotifyOnRelock:       true,
	}
}

// SiteStats accumulates per-site enforcement counters.
type SiteStats struct {
	SiteID        string    `json:"siteId"`
	BlockedCount  uint64    `json:"blockedCount"`
	UnlockCount   uint64    `json:"unlockCount"`
	LastBlockedAt time.Time `json:"lastBlockedAt,omitzero"`
}
