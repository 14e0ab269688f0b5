package enforcer

import (
	"context"
	"fmt"

	"github.com/haltgate/haltgate/internal/gate/common/log"
	"github.com/haltgate/haltgate/internal/gate/domain"
)

// Coordinator reacts to the two events that can invalidate backend
// state: site-list mutations and unlock deadlines. It re-derives
// backend state and performs the relock side effects (tab redirects,
// notification), all best-effort past the ledger eviction.
type Coordinator struct {
	backend  Backend
	store    SiteStore
	tabs     Tabs
	notifier Notifier
	logger   log.Logger
}

// NewCoordinator wires the coordinator.
func NewCoordinator(backend Backend, store SiteStore, tabs Tabs, notifier Notifier, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Coordinator{backend: backend, store: store, tabs: tabs, notifier: notifier, logger: logger}
}

// OnSitesChanged refreshes the active backend after any site mutation.
func (c *Coordinator) OnSitesChanged(ctx context.Context) error {
	if err := c.backend.Refresh(ctx); err != nil {
		return fmt.Errorf("backend refresh: %w", err)
	}
	return nil
}

// OnDeadline handles a fired scheduler trigger: evict the grant,
// refresh the backend, redirect every tab still on the site to the
// blocked page, then emit a relock notification. Redirect and
// notification failures are logged and swallowed; the relock itself
// already happened.
func (c *Coordinator) OnDeadline(ctx context.Context, tag string) {
	ev := c.backend.HandleDeadline(tag)
	if ev == nil {
		return
	}
	if err := c.backend.Refresh(ctx); err != nil {
		c.logger.Error(map[string]any{
			"site_id": ev.SiteID,
			"error":   err,
		}, "Backend refresh after relock failed")
	}

	settings, err := c.store.Settings()
	if err != nil {
		settings = domain.DefaultSettings()
		c.logger.Warn(map[string]any{"error": err}, "Settings read failed, using defaults for relock redirect")
	}

	for _, tab := range ev.Tabs {
		target := BlockedPageURL(settings.BlockedPage, tab.URL, ev.SiteID)
		if err := c.tabs.Redirect(tab.ID, target); err != nil {
			c.logger.Warn(map[string]any{
				"tab_id":  tab.ID,
				"site_id": ev.SiteID,
				"error":   err,
			}, "Relock redirect failed")
		}
	}

	if settings.NotifyOnRelock && c.notifier != nil {
		name := ev.SiteID
		if site, err := c.store.Get(ev.SiteID); err == nil {
			name = site.Name
		}
		if err := c.notifier.Notify("Site relocked", fmt.Sprintf("%s is blocked again", name)); err != nil {
			c.logger.Warn(map[string]any{"site_id": ev.SiteID, "error": err}, "Relock notification failed")
		}
	}
}
