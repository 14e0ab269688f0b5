// Package snapshot holds the read-optimized materialization of the
// site list used on the hot matching path. Snapshots are rebuilt
// wholesale on every change and never mutated incrementally.
package snapshot

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haltgate/haltgate/internal/gate/common/urlutil"
	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/match"
)

// bloomFPRate is the target false-positive rate for the host-anchor
// prefilter. False positives cost one full evaluation; false negatives
// cannot occur.
const bloomFPRate = 0.01

// Snapshot is a versioned copy of the configured sites plus two
// read-path accelerators: a Bloom prefilter over rule host anchors for
// early allows, and an LRU cache of full decisions keyed by URL.
type Snapshot struct {
	mu     sync.RWMutex
	sites  []domain.Site
	byID   map[string]domain.Site
	filter *bloom.BloomFilter
	// bypass disables the prefilter when any rule host cannot be
	// anchored by apex: a free-form glob, or a host that is itself a
	// public suffix.
	bypass  bool
	version atomic.Uint64

	cache *lru.Cache[string, domain.Decision]
}

// New returns an empty snapshot. cacheSize <= 0 disables the decision
// cache.
func New(cacheSize int) *Snapshot {
	s := &Snapshot{byID: make(map[string]domain.Site)}
	if cacheSize > 0 {
		s.cache, _ = lru.New[string, domain.Decision](cacheSize)
	}
	return s
}

// Rebuild replaces the snapshot contents with the given site list,
// bumps the version, rebuilds the prefilter and purges the decision
// cache. The input slice is copied; callers keep ownership.
func (s *Snapshot) Rebuild(sites []domain.Site) {
	cp := make([]domain.Site, len(sites))
	copy(cp, sites)

	byID := make(map[string]domain.Site, len(cp))
	for _, site := range cp {
		byID[site.ID] = site
	}

	filter, bypass := buildFilter(cp)

	s.mu.Lock()
	s.sites = cp
	s.byID = byID
	s.filter = filter
	s.bypass = bypass
	if s.cache != nil {
		s.cache.Purge()
	}
	s.mu.Unlock()
	s.version.Add(1)
}

// Sites returns the current site list. The returned slice must not be
// mutated.
func (s *Snapshot) Sites() []domain.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sites
}

// Site returns the site with the given id from the current snapshot.
func (s *Snapshot) Site(id string) (domain.Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.byID[id]
	return site, ok
}

// Version returns a counter that increments on every Rebuild.
func (s *Snapshot) Version() uint64 {
	return s.version.Load()
}

// MightMatch reports whether any configured rule could possibly match
// the given host. A false return is definitive; true means a full
// evaluation is required.
func (s *Snapshot) MightMatch(host string) bool {
	s.mu.RLock()
	filter, bypass := s.filter, s.bypass
	s.mu.RUnlock()
	if filter == nil || bypass {
		return true
	}
	apex := urlutil.ApexDomain(urlutil.StripWWW(host))
	return filter.Test([]byte(apex))
}

// Decide evaluates a URL against the snapshot, consulting the
// prefilter and decision cache first. Unlock state is deliberately not
// part of the decision; callers layer the ledger check on top so
// cached decisions stay valid across grants.
func (s *Snapshot) Decide(rawURL string) domain.Decision {
	u, ok := urlutil.Parse(rawURL)
	if !ok {
		return domain.EmptyDecision()
	}
	if !s.MightMatch(u.RawHost) {
		return domain.EmptyDecision()
	}
	if d, ok := s.cached(rawURL); ok {
		return d
	}
	d := s.evaluate(rawURL)
	s.storeCached(rawURL, d)
	return d
}

func (s *Snapshot) cached(rawURL string) (domain.Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return domain.Decision{}, false
	}
	return s.cache.Get(rawURL)
}

func (s *Snapshot) storeCached(rawURL string, d domain.Decision) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache != nil {
		s.cache.Add(rawURL, d)
	}
}

func (s *Snapshot) evaluate(rawURL string) domain.Decision {
	sites := s.Sites()
	site, found := match.FindMatchingSite(rawURL, sites)
	if !found {
		return domain.EmptyDecision()
	}
	return domain.Decision{
		Blocked:        true,
		SiteID:         site.ID,
		SiteName:       site.Name,
		MatchedPattern: firstBlockingPattern(rawURL, site),
	}
}

// firstBlockingPattern reports the first block rule that matched, for
// diagnostics on the blocked page.
func firstBlockingPattern(rawURL string, site domain.Site) string {
	for _, r := range site.Rules {
		if !r.Allow && match.Matches(rawURL, r.Pattern) {
			return r.Pattern
		}
	}
	return ""
}

// buildFilter sizes and fills the host-anchor Bloom filter. Rules that
// cannot be anchored by apex disable the prefilter entirely rather
// than risk a false negative: a free-form host glob, or a host that is
// itself a public suffix (*.github.io anchors as github.io while a
// navigated foo.github.io resolves to apex foo.github.io).
func buildFilter(sites []domain.Site) (filter *bloom.BloomFilter, bypass bool) {
	var anchors []string
	for _, site := range sites {
		if !site.Enabled {
			continue
		}
		for _, rule := range site.Rules {
			if rule.Allow {
				continue
			}
			host, _ := rule.HostPart()
			host = strings.ToLower(host)
			if h, ok := strings.CutPrefix(host, "*."); ok {
				host = h
			}
			if strings.ContainsRune(host, '*') {
				return nil, true
			}
			apex, ok := urlutil.ResolveApex(urlutil.StripWWW(host))
			if !ok {
				return nil, true
			}
			anchors = append(anchors, apex)
		}
	}
	if len(anchors) == 0 {
		return nil, false
	}
	filter = bloom.NewWithEstimates(uint(len(anchors)), bloomFPRate)
	for _, a := range anchors {
		filter.Add([]byte(a))
	}
	return filter, false
}
