// Package ledger tracks temporary unlock grants. The ledger is
// backend-agnostic: both enforcement backends delegate unlock
// semantics here and only differ in the refresh step that follows a
// mutation.
package ledger

import (
	"strings"
	"sync"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/clock"
	"github.com/haltgate/haltgate/internal/gate/common/log"
	"github.com/haltgate/haltgate/internal/gate/common/urlutil"
	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/match"
)

// TagPrefix marks scheduler deadlines owned by the ledger. The suffix
// is the site id.
const TagPrefix = "unlock:"

// Scheduler is the deadline capability. RegisterDeadline with an
// already-registered tag replaces the prior registration; a tag fires
// at most once unless re-registered.
type Scheduler interface {
	RegisterDeadline(tag string, at time.Time)
	CancelDeadline(tag string)
}

// TabLister exposes the open tabs, used to compute which tabs need a
// redirect when a site relocks.
type TabLister interface {
	List() []domain.Tab
}

// SiteSource resolves a site id to its current definition. Backed by
// the enforcement snapshot so the ledger never blocks on storage.
type SiteSource interface {
	Site(id string) (domain.Site, bool)
}

// RelockEvent describes an expired or revoked grant plus the tabs
// still sitting on the site's pages.
type RelockEvent struct {
	SiteID string
	Tabs   []domain.Tab
}

// Options configures a Ledger.
type Options struct {
	Clock          clock.Clock
	Scheduler      Scheduler
	Tabs           TabLister
	Sites          SiteSource
	DefaultMinutes int
	Logger         log.Logger
}

// Ledger owns all unlock grants. At most one grant per site; a new
// grant replaces the old one and re-arms its deadline. Expiry is lazy:
// reads treat a past ExpiresAt as absent and evict opportunistically.
type Ledger struct {
	mu     sync.Mutex
	grants map[string]domain.UnlockGrant

	clk            clock.Clock
	sched          Scheduler
	tabs           TabLister
	sites          SiteSource
	defaultMinutes int
	logger         log.Logger
}

// New constructs an empty Ledger.
func New(opts Options) *Ledger {
	minutes := opts.DefaultMinutes
	if minutes <= 0 {
		minutes = domain.DefaultUnlockMinutes
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Ledger{
		grants:         make(map[string]domain.UnlockGrant),
		clk:            opts.Clock,
		sched:          opts.Scheduler,
		tabs:           opts.Tabs,
		sites:          opts.Sites,
		defaultMinutes: minutes,
		logger:         logger,
	}
}

// Tag returns the scheduler tag for a site's unlock deadline.
func Tag(siteID string) string { return TagPrefix + siteID }

// Grant stores (or replaces) a grant for siteID and registers its
// deadline. minutes <= 0 falls back to the site's AutoRelockAfter,
// then the configured default.
func (l *Ledger) Grant(siteID string, minutes int) time.Time {
	if minutes <= 0 {
		minutes = l.defaultMinutes
		if site, ok := l.sites.Site(siteID); ok && site.AutoRelockAfter != nil && *site.AutoRelockAfter > 0 {
			minutes = *site.AutoRelockAfter
		}
	}
	expiresAt := l.clk.Now().Add(time.Duration(minutes) * time.Minute)

	// The deadline registration stays under the lock so concurrent
	// grants for the same site cannot interleave the map write of one
	// call with the timer of another.
	l.mu.Lock()
	l.grants[siteID] = domain.UnlockGrant{SiteID: siteID, ExpiresAt: expiresAt}
	if l.sched != nil {
		l.sched.RegisterDeadline(Tag(siteID), expiresAt)
	}
	l.mu.Unlock()
	l.logger.Info(map[string]any{
		"site_id":    siteID,
		"minutes":    minutes,
		"expires_at": expiresAt,
	}, "Unlock granted")
	return expiresAt
}

// Revoke removes the grant for siteID, cancels its deadline and
// returns the open tabs whose URL still matches the site's rules.
// Revoking a site with no grant is a no-op with an empty tab list.
func (l *Ledger) Revoke(siteID string) []domain.Tab {
	l.mu.Lock()
	_, had := l.grants[siteID]
	delete(l.grants, siteID)
	l.mu.Unlock()

	if l.sched != nil {
		l.sched.CancelDeadline(Tag(siteID))
	}
	if !had {
		return nil
	}
	return l.affectedTabs(siteID)
}

// IsUnlocked reports whether a live grant exists for siteID. Expired
// grants are evicted on read.
func (l *Ledger) IsUnlocked(siteID string) bool {
	_, ok := l.GetGrant(siteID)
	return ok
}

// GetGrant returns the live grant for siteID, performing lazy expiry.
func (l *Ledger) GetGrant(siteID string) (domain.UnlockGrant, bool) {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.grants[siteID]
	if !ok {
		return domain.UnlockGrant{}, false
	}
	if g.Expired(now) {
		delete(l.grants, siteID)
		return domain.UnlockGrant{}, false
	}
	return g, true
}

// OnDeadline handles a scheduler trigger. Tags without the unlock
// prefix are ignored. A stale trigger, one that fires after a newer
// grant pushed the expiry into the future, is also ignored; the
// scheduler re-registration for the newer grant covers it.
func (l *Ledger) OnDeadline(tag string) *RelockEvent {
	siteID, ok := strings.CutPrefix(tag, TagPrefix)
	if !ok || siteID == "" {
		return nil
	}
	now := l.clk.Now()

	l.mu.Lock()
	g, had := l.grants[siteID]
	if had && g.ExpiresAt.After(now) {
		l.mu.Unlock()
		l.logger.Debug(map[string]any{"site_id": siteID}, "Stale unlock deadline ignored")
		return nil
	}
	delete(l.grants, siteID)
	l.mu.Unlock()

	if !had {
		return nil
	}
	l.logger.Info(map[string]any{"site_id": siteID}, "Unlock expired, relocking")
	return &RelockEvent{SiteID: siteID, Tabs: l.affectedTabs(siteID)}
}

// affectedTabs re-runs the rule evaluator over the open tabs,
// excluding internal URLs, and returns the ones still on the site.
func (l *Ledger) affectedTabs(siteID string) []domain.Tab {
	site, ok := l.sites.Site(siteID)
	if !ok || l.tabs == nil {
		return nil
	}
	var affected []domain.Tab
	for _, tab := range l.tabs.List() {
		if urlutil.IsInternal(tab.URL) {
			continue
		}
		if match.EvaluateRules(tab.URL, site.Rules) {
			affected = append(affected, tab)
		}
	}
	return affected
}
