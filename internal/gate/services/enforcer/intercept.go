package enforcer

import (
	"context"
	"time"

	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
)

// interceptBackend decides per-request from the in-process snapshot.
// The verdict cancels the in-flight navigation synchronously; the
// redirect to the blocked page is a deferred effect, because the
// interception point may not permit an atomic redirect.
type interceptBackend struct {
	core
	interceptor Interceptor
}

// NewInterceptBackend constructs the synchronous interception variant.
func NewInterceptBackend(interceptor Interceptor, opts Options) Backend {
	return &interceptBackend{core: newCore(opts), interceptor: interceptor}
}

func (b *interceptBackend) Initialize(ctx context.Context) error {
	if err := b.reload(); err != nil {
		return err
	}
	return b.interceptor.Register(func(rawURL string, rc RequestContext) domain.Verdict {
		v := b.Decide(rawURL, rc)
		if len(v.Effects) > 0 {
			// Redirection is detached from the cancel verdict.
			go b.runEffects(v.Effects)
		}
		return v
	})
}

func (b *interceptBackend) Refresh(ctx context.Context) error {
	return b.reload()
}

func (b *interceptBackend) Decide(rawURL string, rc RequestContext) domain.Verdict {
	if !rc.TopLevel && rc.TabID != 0 {
		// Sub-frame loads are governed by their top-level document.
		return domain.AllowVerdict()
	}
	v := b.decide(rawURL, rc)
	if v.Allow {
		return v
	}
	if rc.TabID != 0 {
		v.Effects = append(v.Effects, domain.Effect{
			Kind:      domain.EffectRedirectTab,
			TabID:     rc.TabID,
			TargetURL: v.RedirectURL,
		})
	}
	return v
}

func (b *interceptBackend) GrantAccess(siteID string, minutes int) (time.Time, bool) {
	// Unlock checks run per-request against the ledger; no snapshot
	// work is needed here.
	return b.grantAccess(siteID, minutes)
}

func (b *interceptBackend) RevokeAccess(siteID string) []domain.Tab {
	return b.revokeAccess(siteID)
}

func (b *interceptBackend) IsSiteUnlocked(siteID string) bool {
	return b.isSiteUnlocked(siteID)
}

func (b *interceptBackend) GetUnlockState(siteID string) (domain.UnlockGrant, bool) {
	return b.getUnlockState(siteID)
}

func (b *interceptBackend) HandleDeadline(tag string) *ledger.RelockEvent {
	return b.handleDeadline(tag)
}

var _ Backend = (*interceptBackend)(nil)
