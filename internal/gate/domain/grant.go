package domain

import "time"

// UnlockGrant is a temporary, time-bounded suspension of blocking for
// one site. At most one live grant exists per site; a new grant
// replaces the prior one. A grant whose ExpiresAt is not after "now"
// is equivalent to no grant at all.
type UnlockGrant struct {
	SiteID    string    `json:"siteId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the grant has lapsed as of now.
func (g UnlockGrant) Expired(now time.Time) bool {
	return !g.ExpiresAt.After(now)
}
