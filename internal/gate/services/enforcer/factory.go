package enforcer

import (
	"context"
	"time"

	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
)

// BackendMode selects the enforcement strategy at composition time.
type BackendMode string

const (
	// ModeAuto probes capabilities: declarative when a directive table
	// exists, else interception, else enforcement is disabled.
	ModeAuto BackendMode = "auto"
	// ModeIntercept forces the synchronous interception variant.
	ModeIntercept BackendMode = "intercept"
	// ModeDeclarative forces the declarative variant.
	ModeDeclarative BackendMode = "declarative"
)

// NewBackend performs the one-time strategy selection. A forced mode
// whose capability is missing degrades to the disabled backend rather
// than failing startup: the system runs without enforcement, which is
// recoverable, while a crash is not.
func NewBackend(mode BackendMode, caps Capabilities, opts Options) Backend {
	logger := opts.Logger
	switch mode {
	case ModeDeclarative:
		if caps.Directives != nil {
			return NewDeclarativeBackend(caps.Directives, opts)
		}
	case ModeIntercept:
		if caps.Interceptor != nil {
			return NewInterceptBackend(caps.Interceptor, opts)
		}
	default:
		if caps.Directives != nil {
			return NewDeclarativeBackend(caps.Directives, opts)
		}
		if caps.Interceptor != nil {
			return NewInterceptBackend(caps.Interceptor, opts)
		}
	}
	if logger != nil {
		logger.Warn(map[string]any{"mode": string(mode)}, "No enforcement mechanism available, blocking disabled")
	}
	return &disabledBackend{core: newCore(opts)}
}

// disabledBackend is the no-enforcement fallback. Decisions always
// allow; unlock bookkeeping still works so the UI stays functional.
type disabledBackend struct {
	core
}

func (b *disabledBackend) Initialize(ctx context.Context) error { return b.reload() }
func (b *disabledBackend) Refresh(ctx context.Context) error    { return b.reload() }

func (b *disabledBackend) Decide(string, RequestContext) domain.Verdict {
	return domain.AllowVerdict()
}

func (b *disabledBackend) GrantAccess(siteID string, minutes int) (time.Time, bool) {
	return b.grantAccess(siteID, minutes)
}

func (b *disabledBackend) RevokeAccess(siteID string) []domain.Tab {
	return b.revokeAccess(siteID)
}

func (b *disabledBackend) IsSiteUnlocked(siteID string) bool {
	return b.isSiteUnlocked(siteID)
}

func (b *disabledBackend) GetUnlockState(siteID string) (domain.UnlockGrant, bool) {
	return b.getUnlockState(siteID)
}

func (b *disabledBackend) HandleDeadline(tag string) *ledger.RelockEvent {
	return b.handleDeadline(tag)
}

var _ Backend = (*disabledBackend)(nil)

// ParseBackendMode maps a config string onto a BackendMode.
func ParseBackendMode(s string) BackendMode {
	switch BackendMode(s) {
	case ModeIntercept:
		return ModeIntercept
	case ModeDeclarative:
		return ModeDeclarative
	default:
		return ModeAuto
	}
}
