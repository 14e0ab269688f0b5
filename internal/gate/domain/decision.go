package domain

// Decision is the outcome of evaluating a URL against the configured
// site list. Pure value type, no external dependencies.
type Decision struct {
	Blocked        bool   // true if the URL is blocked by a site's rules
	SiteID         string // matched site, empty when not blocked
	SiteName       string
	MatchedPattern string // first pattern that produced the block, for diagnostics
}

// IsBlocked is a convenience accessor.
func (d Decision) IsBlocked() bool { return d.Blocked }

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() Decision { return Decision{Blocked: false} }

// EffectKind identifies a deferred side effect attached to a Verdict.
type EffectKind uint8

const (
	// EffectRedirectTab redirects a tab to the blocked page.
	EffectRedirectTab EffectKind = iota
	// EffectNotify emits a user-facing notification.
	EffectNotify
)

// Effect is a deferred side-effect command. The verdict path stays
// synchronous; the caller executes effects afterwards, best-effort.
type Effect struct {
	Kind      EffectKind
	TabID     int    // EffectRedirectTab only
	TargetURL string // EffectRedirectTab only
	Message   string // EffectNotify only
}

// Verdict is the immediate answer for one navigation plus any deferred
// side effects. The synchronous part (Allow) must be honored by the
// caller before effects run, because the platform may forbid an atomic
// cancel-and-redirect at the interception point.
type Verdict struct {
	Allow       bool
	RedirectURL string // blocked-page locator when Allow is false
	Decision    Decision
	Effects     []Effect
}

// AllowVerdict returns a verdict that lets the navigation proceed.
func AllowVerdict() Verdict { return Verdict{Allow: true} }
