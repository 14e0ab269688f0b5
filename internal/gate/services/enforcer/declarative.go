package enforcer

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/urlutil"
	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
)

// declarativeBackend compiles the enabled, locked site set into a
// directive batch the platform enforces on its own. The table does not
// update itself: Refresh must run after every site mutation and every
// grant, revoke or expiry.
type declarativeBackend struct {
	core
	table DirectiveTable
}

// NewDeclarativeBackend constructs the declarative variant.
func NewDeclarativeBackend(table DirectiveTable, opts Options) Backend {
	return &declarativeBackend{core: newCore(opts), table: table}
}

func (b *declarativeBackend) Initialize(ctx context.Context) error {
	return b.Refresh(ctx)
}

// Refresh rebuilds the snapshot, recompiles the directive batch and
// installs it as a full replacement of the prior batch.
func (b *declarativeBackend) Refresh(ctx context.Context) error {
	if err := b.reload(); err != nil {
		return err
	}
	batch := b.compile()
	if err := b.table.Install(batch); err != nil {
		return err
	}
	b.logger.Debug(map[string]any{"directives": len(batch)}, "Directive batch installed")
	return nil
}

// Decide still answers queries (CHECK_BLOCKED and friends) from the
// snapshot; the platform handles the actual navigations. No deferred
// effects are produced here.
func (b *declarativeBackend) Decide(rawURL string, rc RequestContext) domain.Verdict {
	return b.decide(rawURL, rc)
}

func (b *declarativeBackend) GrantAccess(siteID string, minutes int) (time.Time, bool) {
	expiresAt, ok := b.grantAccess(siteID, minutes)
	if ok {
		b.refreshTable()
	}
	return expiresAt, ok
}

func (b *declarativeBackend) RevokeAccess(siteID string) []domain.Tab {
	tabs := b.revokeAccess(siteID)
	b.refreshTable()
	return tabs
}

func (b *declarativeBackend) IsSiteUnlocked(siteID string) bool {
	return b.isSiteUnlocked(siteID)
}

func (b *declarativeBackend) GetUnlockState(siteID string) (domain.UnlockGrant, bool) {
	return b.getUnlockState(siteID)
}

func (b *declarativeBackend) HandleDeadline(tag string) *ledger.RelockEvent {
	ev := b.handleDeadline(tag)
	if ev != nil {
		b.refreshTable()
	}
	return ev
}

// refreshTable recompiles and reinstalls directives after a ledger
// mutation, without re-reading storage. Install failures leave the
// prior batch active; logged and recovered on the next refresh.
func (b *declarativeBackend) refreshTable() {
	if err := b.table.Install(b.compile()); err != nil {
		b.logger.Error(map[string]any{"error": err}, "Directive reinstall failed")
	}
}

// compile turns the snapshot's enabled, locked sites into an ordered
// directive batch. Earlier sites get higher priority bands so
// first-match-wins across sites survives compilation; within a site,
// allow rules outrank block rules because a matching allow always wins
// during evaluation.
func (b *declarativeBackend) compile() []domain.Directive {
	sites := b.snapshot.Sites()
	blockedPage := b.currentSettings().BlockedPage

	var batch []domain.Directive
	id := 1
	for i, site := range sites {
		if !site.Enabled || b.ledger.IsUnlocked(site.ID) {
			continue
		}
		band := (len(sites) - i) * 10
		for _, rule := range site.Rules {
			re := ruleRegex(rule)
			if re == "" {
				continue
			}
			d := domain.Directive{
				ID:     id,
				Regex:  re,
				SiteID: site.ID,
			}
			if rule.Allow {
				d.Action = domain.ActionAllow
				d.Priority = band + 1
			} else {
				d.Action = domain.ActionRedirect
				d.Priority = band
				d.RedirectURL = blockedPage + `?url=\0&site=` + url.QueryEscape(site.ID)
			}
			batch = append(batch, d)
			id++
		}
	}
	return batch
}

// ruleRegex compiles one rule pattern into an anchored,
// case-insensitive, full-URL regular expression. The flag is embedded
// so the directive stands on its own regardless of how the platform
// matches. Returns "" for patterns that cannot compile; those rules
// are skipped rather than installed broken.
func ruleRegex(rule domain.Rule) string {
	pat := strings.ToLower(strings.TrimSpace(rule.Pattern))
	if i := strings.Index(pat, "://"); i >= 0 {
		pat = pat[i+3:]
	}
	var hostPat, pathPat string
	if i := strings.IndexByte(pat, '/'); i >= 0 {
		hostPat, pathPat = pat[:i], pat[i:]
	} else {
		hostPat = pat
	}
	hostPat = urlutil.StripWWW(hostPat)
	if hostPat == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(`(?i)^https?://`)
	if apex, ok := strings.CutPrefix(hostPat, "*."); ok {
		// Apex-inclusive: the domain itself or any subdomain.
		sb.WriteString(`([^/]+\.)?` + glob(apex))
	} else {
		sb.WriteString(`(www\.)?` + glob(hostPat))
	}
	sb.WriteString(`(:\d+)?`)
	if pathPat == "" {
		sb.WriteString(`(/.*)?$`)
	} else {
		sb.WriteString(glob(strings.TrimSuffix(pathPat, "/")) + `(/.*)?/?$`)
	}
	expr := sb.String()
	if _, err := regexp.Compile(expr); err != nil {
		return ""
	}
	return expr
}

// glob escapes regex metacharacters except *, which becomes ".*".
func glob(s string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(s), `\*`, ".*")
}

var _ Backend = (*declarativeBackend)(nil)
