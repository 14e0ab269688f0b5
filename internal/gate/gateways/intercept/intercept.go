// Package intercept is the in-process interception point. The
// embedding platform forwards each top-level navigation to Navigate
// and honors the returned verdict synchronously.
package intercept

import (
	"sync"

	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/services/enforcer"
)

// Hub connects the platform's navigation events to the registered
// enforcement handler.
type Hub struct {
	mu      sync.RWMutex
	handler func(rawURL string, rc enforcer.RequestContext) domain.Verdict
}

// New returns a Hub with no handler registered.
func New() *Hub {
	return &Hub{}
}

// Register installs the enforcement handler. The last registration
// wins; backends register exactly once at initialization.
func (h *Hub) Register(handler func(rawURL string, rc enforcer.RequestContext) domain.Verdict) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
	return nil
}

// Navigate runs one navigation through the handler. With no handler
// registered every navigation is allowed.
func (h *Hub) Navigate(rawURL string, rc enforcer.RequestContext) domain.Verdict {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler == nil {
		return domain.AllowVerdict()
	}
	return handler(rawURL, rc)
}

var _ enforcer.Interceptor = (*Hub)(nil)
