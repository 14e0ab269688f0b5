package enforcer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/clock"
	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
	"github.com/haltgate/haltgate/internal/gate/repos/snapshot"
)

// fakeStore is an in-memory SiteStore.
type fakeStore struct {
	mu       sync.Mutex
	sites    []domain.Site
	settings domain.Settings
	stats    map[string]domain.SiteStats
	listErr  error
}

func newFakeStore(sites ...domain.Site) *fakeStore {
	return &fakeStore{
		sites:    sites,
		settings: domain.DefaultSettings(),
		stats:    make(map[string]domain.SiteStats),
	}
}

func (f *fakeStore) List() ([]domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Site, len(f.sites))
	copy(out, f.sites)
	return out, nil
}

func (f *fakeStore) Get(id string) (domain.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sites {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Site{}, errors.New("site not found")
}

func (f *fakeStore) Settings() (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeStore) Stats(id string) (domain.SiteStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[id], nil
}

func (f *fakeStore) BumpStats(id string, blockedDelta, unlockDelta uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stats[id]
	st.SiteID = id
	st.BlockedCount += blockedDelta
	st.UnlockCount += unlockDelta
	f.stats[id] = st
	return nil
}

// fakeTabs records redirects and can fail specific tabs.
type fakeTabs struct {
	mu        sync.Mutex
	tabs      []domain.Tab
	redirects []redirect
	failTabs  map[int]bool
}

type redirect struct {
	tabID  int
	target string
}

func (f *fakeTabs) List() []domain.Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tabs
}

func (f *fakeTabs) Redirect(tabID int, targetURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTabs[tabID] {
		return fmt.Errorf("tab %d gone", tabID)
	}
	f.redirects = append(f.redirects, redirect{tabID: tabID, target: targetURL})
	return nil
}

func (f *fakeTabs) redirectsFor(tabID int) []redirect {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []redirect
	for _, r := range f.redirects {
		if r.tabID == tabID {
			out = append(out, r)
		}
	}
	return out
}

// fakeNotifier counts notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, title+": "+body)
	return nil
}

// fakeTable records installed directive batches.
type fakeTable struct {
	mu      sync.Mutex
	batches [][]domain.Directive
	err     error
}

func (f *fakeTable) Install(batch []domain.Directive) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeTable) last() []domain.Directive {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

// fakeInterceptor captures the registered handler.
type fakeInterceptor struct {
	handler func(string, RequestContext) domain.Verdict
}

func (f *fakeInterceptor) Register(handler func(string, RequestContext) domain.Verdict) error {
	f.handler = handler
	return nil
}

// fakeScheduler records deadline registrations.
type fakeScheduler struct {
	mu         sync.Mutex
	registered map[string]time.Time
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{registered: make(map[string]time.Time)}
}

func (f *fakeScheduler) RegisterDeadline(tag string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[tag] = at
}

func (f *fakeScheduler) CancelDeadline(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, tag)
}

func redditSite() domain.Site {
	return domain.Site{
		ID:        "reddit",
		Name:      "Reddit",
		Rules:     []domain.Rule{{Pattern: "reddit.com", Allow: false}},
		Enabled:   true,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// testRig bundles one fully wired stack around a fake store and clock.
type testRig struct {
	clk      *clock.MockClock
	store    *fakeStore
	snapshot *snapshot.Snapshot
	ledger   *ledger.Ledger
	tabs     *fakeTabs
	notifier *fakeNotifier
	sched    *fakeScheduler
}

func newTestRig(sites ...domain.Site) *testRig {
	r := &testRig{
		clk:      &clock.MockClock{CurrentTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		store:    newFakeStore(sites...),
		snapshot: snapshot.New(16),
		tabs:     &fakeTabs{},
		notifier: &fakeNotifier{},
		sched:    newFakeScheduler(),
	}
	r.ledger = ledger.New(ledger.Options{
		Clock:     r.clk,
		Scheduler: r.sched,
		Tabs:      r.tabs,
		Sites:     r.snapshot,
	})
	return r
}

func (r *testRig) options() Options {
	return Options{
		Snapshot: r.snapshot,
		Ledger:   r.ledger,
		Store:    r.store,
		Tabs:     r.tabs,
		Notifier: r.notifier,
	}
}
