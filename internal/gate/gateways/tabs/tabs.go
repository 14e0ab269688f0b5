// Package tabs is an in-process tab registry implementing the tab
// capability. The embedding platform mirrors its real tabs into the
// registry; redirects update the mirrored URL and surface to the
// platform through the OnRedirect hook.
package tabs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haltgate/haltgate/internal/gate/domain"
)

// Registry tracks open tabs by id.
type Registry struct {
	mu   sync.RWMutex
	tabs map[int]domain.Tab

	// OnRedirect, when set, is invoked after a successful redirect so
	// the platform can apply it to the real tab.
	OnRedirect func(tabID int, targetURL string)
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tabs: make(map[int]domain.Tab)}
}

// Upsert records a tab's current URL.
func (r *Registry) Upsert(tab domain.Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs[tab.ID] = tab
}

// Remove forgets a closed tab.
func (r *Registry) Remove(tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, tabID)
}

// List returns all open tabs in stable id order.
func (r *Registry) List() []domain.Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Redirect points a tab at targetURL. Redirecting an unknown (closed)
// tab returns an error; callers treat that as a logged no-op.
func (r *Registry) Redirect(tabID int, targetURL string) error {
	r.mu.Lock()
	tab, ok := r.tabs[tabID]
	if ok {
		tab.URL = targetURL
		r.tabs[tabID] = tab
	}
	hook := r.OnRedirect
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("tab %d not open", tabID)
	}
	if hook != nil {
		hook(tabID, targetURL)
	}
	return nil
}
