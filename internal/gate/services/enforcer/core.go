package enforcer

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/log"
	"github.com/haltgate/haltgate/internal/gate/common/urlutil"
	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
	"github.com/haltgate/haltgate/internal/gate/repos/snapshot"
)

// Options wires a backend's dependencies. Snapshot, Ledger and Store
// are constructed once at startup and shared; the backend never owns
// them.
type Options struct {
	Snapshot *snapshot.Snapshot
	Ledger   *ledger.Ledger
	Store    SiteStore
	Tabs     Tabs
	Notifier Notifier
	Logger   log.Logger
}

// core implements everything the two backend variants share: the
// snapshot-backed decision path and the ledger delegation. Variants
// layer their own Initialize/Refresh on top.
type core struct {
	snapshot *snapshot.Snapshot
	ledger   *ledger.Ledger
	store    SiteStore
	tabs     Tabs
	notifier Notifier
	logger   log.Logger

	mu       sync.RWMutex
	settings domain.Settings
}

func newCore(opts Options) core {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return core{
		snapshot: opts.Snapshot,
		ledger:   opts.Ledger,
		store:    opts.Store,
		tabs:     opts.Tabs,
		notifier: opts.Notifier,
		logger:   logger,
		settings: domain.DefaultSettings(),
	}
}

// reload pulls the site list and settings from storage and rebuilds
// the snapshot wholesale.
func (c *core) reload() error {
	sites, err := c.store.List()
	if err != nil {
		return fmt.Errorf("loading sites: %w", err)
	}
	settings, err := c.store.Settings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	c.snapshot.Rebuild(sites)
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
	c.logger.Debug(map[string]any{
		"sites":   len(sites),
		"version": c.snapshot.Version(),
	}, "Enforcement snapshot rebuilt")
	return nil
}

func (c *core) currentSettings() domain.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// decide is the shared verdict path: internal URLs pass, then the
// snapshot decision, then the unlock check.
func (c *core) decide(rawURL string, rc RequestContext) domain.Verdict {
	if urlutil.IsInternal(rawURL) {
		return domain.AllowVerdict()
	}
	d := c.snapshot.Decide(rawURL)
	if !d.Blocked {
		return domain.AllowVerdict()
	}
	if c.ledger.IsUnlocked(d.SiteID) {
		return domain.AllowVerdict()
	}
	return domain.Verdict{
		Allow:       false,
		RedirectURL: c.blockedTarget(rawURL, d.SiteID),
		Decision:    d,
	}
}

// blockedTarget builds the blocked-page locator carrying the original
// URL and site id as percent-encoded query parameters.
func (c *core) blockedTarget(originalURL, siteID string) string {
	return BlockedPageURL(c.currentSettings().BlockedPage, originalURL, siteID)
}

// BlockedPageURL is the canonical redirect target format.
func BlockedPageURL(blockedPage, originalURL, siteID string) string {
	return blockedPage + "?url=" + url.QueryEscape(originalURL) + "&site=" + url.QueryEscape(siteID)
}

func (c *core) grantAccess(siteID string, minutes int) (time.Time, bool) {
	if _, ok := c.snapshot.Site(siteID); !ok {
		c.logger.Warn(map[string]any{"site_id": siteID}, "Unlock requested for unknown site")
		return time.Time{}, false
	}
	return c.ledger.Grant(siteID, minutes), true
}

func (c *core) revokeAccess(siteID string) []domain.Tab {
	return c.ledger.Revoke(siteID)
}

func (c *core) isSiteUnlocked(siteID string) bool {
	return c.ledger.IsUnlocked(siteID)
}

func (c *core) getUnlockState(siteID string) (domain.UnlockGrant, bool) {
	return c.ledger.GetGrant(siteID)
}

func (c *core) handleDeadline(tag string) *ledger.RelockEvent {
	return c.ledger.OnDeadline(tag)
}

// runEffects executes deferred side effects best-effort. A redirect to
// a tab that closed or navigated away is logged and skipped; it never
// affects other effects in the batch.
func (c *core) runEffects(effects []domain.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case domain.EffectRedirectTab:
			if c.tabs == nil {
				continue
			}
			if err := c.tabs.Redirect(e.TabID, e.TargetURL); err != nil {
				c.logger.Warn(map[string]any{
					"tab_id": e.TabID,
					"error":  err,
				}, "Tab redirect failed")
			}
		case domain.EffectNotify:
			if c.notifier == nil {
				continue
			}
			if err := c.notifier.Notify("haltgate", e.Message); err != nil {
				c.logger.Warn(map[string]any{"error": err}, "Notification failed")
			}
		}
	}
}
