// Package directives is an in-process directive table implementing
// the declarative capability. It stores the installed batch and can
// match navigations against it, standing in for the platform's own
// rule engine in tests and headless deployments.
package directives

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/haltgate/haltgate/internal/gate/domain"
)

// Table holds the currently installed directive batch.
type Table struct {
	mu    sync.RWMutex
	batch []domain.Directive
	res   map[int]*regexp.Regexp // directive ID → compiled pattern
}

// New returns an empty Table.
func New() *Table {
	return &Table{res: make(map[int]*regexp.Regexp)}
}

// Install replaces the entire batch. Directives that fail to compile
// are dropped; the enforcer pre-validates patterns so this is a guard,
// not a code path.
func (t *Table) Install(batch []domain.Directive) error {
	cp := make([]domain.Directive, len(batch))
	copy(cp, batch)
	// Highest priority first; ties broken by ID for determinism.
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Priority != cp[j].Priority {
			return cp[i].Priority > cp[j].Priority
		}
		return cp[i].ID < cp[j].ID
	})

	res := make(map[int]*regexp.Regexp, len(cp))
	kept := cp[:0]
	for _, d := range cp {
		re, err := regexp.Compile("(?i)" + d.Regex)
		if err != nil {
			continue
		}
		res[d.ID] = re
		kept = append(kept, d)
	}

	t.mu.Lock()
	t.batch = kept
	t.res = res
	t.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the installed batch in priority order.
func (t *Table) Snapshot() []domain.Directive {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Directive, len(t.batch))
	copy(out, t.batch)
	return out
}

// Match evaluates a URL against the installed batch the way the
// platform would: the highest-priority matching directive wins, and an
// allow directive exempts the navigation.
func (t *Table) Match(rawURL string) (domain.Directive, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, d := range t.batch {
		re := t.res[d.ID]
		if re == nil || !re.MatchString(rawURL) {
			continue
		}
		if d.Action == domain.ActionAllow {
			return domain.Directive{}, false
		}
		return d, true
	}
	return domain.Directive{}, false
}

// RedirectTarget resolves a matched redirect directive's target for a
// concrete URL, substituting the platform's \0 placeholder.
func RedirectTarget(d domain.Directive, rawURL string) string {
	return strings.ReplaceAll(d.RedirectURL, `\0`, rawURL)
}
