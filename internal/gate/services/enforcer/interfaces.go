package enforcer

import (
	"context"
	"time"

	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
)

// RequestContext carries the platform's view of one navigation.
type RequestContext struct {
	TabID    int
	TopLevel bool
}

// Backend is the enforcement strategy contract. Two variants exist:
// a synchronous interception backend that decides per-request from an
// in-process snapshot, and a declarative backend that compiles the
// site list into a platform-managed directive table. Both share
// identical unlock semantics via the ledger; they differ only in the
// refresh step that follows a mutation.
type Backend interface {
	// Initialize registers with the platform's enforcement mechanism.
	Initialize(ctx context.Context) error

	// Refresh re-derives all backend state from the current site list
	// and settings. Must be called after any site mutation; the
	// declarative variant additionally needs it after grant changes.
	Refresh(ctx context.Context) error

	// Decide answers whether a navigation may proceed. Synchronous and
	// non-blocking; deferred side effects ride along on the verdict.
	Decide(rawURL string, rc RequestContext) domain.Verdict

	// GrantAccess unlocks a site. minutes <= 0 selects the site's or
	// the configured default duration. Returns ok=false for an unknown
	// site id; that is a no-op, not an error.
	GrantAccess(siteID string, minutes int) (time.Time, bool)

	// RevokeAccess relocks a site and returns the tabs still on it.
	RevokeAccess(siteID string) []domain.Tab

	// IsSiteUnlocked reports whether a live grant exists.
	IsSiteUnlocked(siteID string) bool

	// GetUnlockState returns the live grant, if any.
	GetUnlockState(siteID string) (domain.UnlockGrant, bool)

	// HandleDeadline processes a scheduler trigger. Returns nil for
	// unrecognized or stale tags.
	HandleDeadline(tag string) *ledger.RelockEvent
}

// Tabs is the tab capability: enumerate open tabs and redirect one.
// Redirecting a tab that has since closed or navigated away returns an
// error the caller logs and ignores.
type Tabs interface {
	List() []domain.Tab
	Redirect(tabID int, targetURL string) error
}

// Notifier emits best-effort user notifications. Failures never abort
// the surrounding operation.
type Notifier interface {
	Notify(title, body string) error
}

// Interceptor is the synchronous interception capability. The handler
// is invoked for every top-level navigation and its verdict cancels
// the in-flight request; redirects happen separately afterwards.
type Interceptor interface {
	Register(handler func(rawURL string, rc RequestContext) domain.Verdict) error
}

// DirectiveTable is the declarative capability. Install replaces the
// entire previously installed batch.
type DirectiveTable interface {
	Install(batch []domain.Directive) error
}

// SiteStore is the slice of the persistence layer the enforcer needs.
type SiteStore interface {
	List() ([]domain.Site, error)
	Get(id string) (domain.Site, error)
	Settings() (domain.Settings, error)
	Stats(id string) (domain.SiteStats, error)
	BumpStats(id string, blockedDelta, unlockDelta uint64) error
}

// Capabilities is the result of the startup platform probe. Nil
// entries mean the mechanism is unavailable.
type Capabilities struct {
	Interceptor Interceptor
	Directives  DirectiveTable
}
