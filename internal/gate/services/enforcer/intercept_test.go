package enforcer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/repos/ledger"
)

func TestInterceptBackend_BlocksAndDefersRedirect(t *testing.T) {
	rig := newTestRig(redditSite())
	ic := &fakeInterceptor{}
	b := NewInterceptBackend(ic, rig.options())
	require.NoError(t, b.Initialize(context.Background()))
	require.NotNil(t, ic.handler, "initialize must register the navigation handler")

	v := b.Decide("https://www.reddit.com/r/test", RequestContext{TabID: 3, TopLevel: true})
	assert.False(t, v.Allow)
	assert.Equal(t, "reddit", v.Decision.SiteID)
	assert.Contains(t, v.RedirectURL, "url=https%3A%2F%2Fwww.reddit.com%2Fr%2Ftest")
	assert.Contains(t, v.RedirectURL, "site=reddit")

	// Cancellation and redirection are separate: the redirect rides
	// along as a deferred effect, not as part of the verdict action.
	require.Len(t, v.Effects, 1)
	assert.Equal(t, domain.EffectRedirectTab, v.Effects[0].Kind)
	assert.Equal(t, 3, v.Effects[0].TabID)
	assert.Equal(t, v.RedirectURL, v.Effects[0].TargetURL)
}

func TestInterceptBackend_AllowsUnmatchedAndInternal(t *testing.T) {
	rig := newTestRig(redditSite())
	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))

	assert.True(t, b.Decide("https://example.com", RequestContext{TabID: 1, TopLevel: true}).Allow)
	assert.True(t, b.Decide("chrome-extension://abc/options.html", RequestContext{TabID: 1, TopLevel: true}).Allow)
	assert.True(t, b.Decide("about:blank", RequestContext{TabID: 1, TopLevel: true}).Allow)

	// Sub-frame loads pass; the top-level document already decided.
	assert.True(t, b.Decide("https://reddit.com/embed", RequestContext{TabID: 1, TopLevel: false}).Allow)
}

func TestInterceptBackend_UnlockSuspendsBlocking(t *testing.T) {
	rig := newTestRig(redditSite())
	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))

	url := "https://reddit.com/r/golang"
	assert.False(t, b.Decide(url, RequestContext{TopLevel: true}).Allow)

	expiresAt, ok := b.GrantAccess("reddit", 60)
	require.True(t, ok)
	assert.Equal(t, rig.clk.Now().Add(60*time.Minute), expiresAt)
	assert.True(t, b.IsSiteUnlocked("reddit"))
	assert.True(t, b.Decide(url, RequestContext{TopLevel: true}).Allow)

	// Expiry re-arms blocking without any refresh.
	rig.clk.Advance(61 * time.Minute)
	assert.False(t, b.IsSiteUnlocked("reddit"))
	assert.False(t, b.Decide(url, RequestContext{TopLevel: true}).Allow)
}

func TestInterceptBackend_GrantUnknownSiteIsNoop(t *testing.T) {
	rig := newTestRig(redditSite())
	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))

	_, ok := b.GrantAccess("ghost", 30)
	assert.False(t, ok)
	assert.False(t, b.IsSiteUnlocked("ghost"))
}

func TestInterceptBackend_RefreshPicksUpSiteChanges(t *testing.T) {
	rig := newTestRig(redditSite())
	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))

	url := "https://reddit.com"
	assert.False(t, b.Decide(url, RequestContext{TopLevel: true}).Allow)

	// Disable the site in storage; the stale snapshot still blocks
	// until the next refresh, then the change lands.
	rig.store.mu.Lock()
	rig.store.sites[0].Enabled = false
	rig.store.mu.Unlock()

	assert.False(t, b.Decide(url, RequestContext{TopLevel: true}).Allow)
	require.NoError(t, b.Refresh(context.Background()))
	assert.True(t, b.Decide(url, RequestContext{TopLevel: true}).Allow)
}

func TestEndToEnd_BlockUnlockRelock(t *testing.T) {
	rig := newTestRig(redditSite())
	rig.tabs.tabs = []domain.Tab{
		{ID: 1, URL: "https://reddit.com/r/test"},
		{ID: 2, URL: "https://example.com"},
	}

	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))
	coord := NewCoordinator(b, rig.store, rig.tabs, rig.notifier, nil)

	url := "https://www.reddit.com/r/test"
	assert.False(t, b.Decide(url, RequestContext{TopLevel: true}).Allow, "initially blocked")

	_, ok := b.GrantAccess("reddit", 60)
	require.True(t, ok)
	assert.True(t, b.Decide(url, RequestContext{TopLevel: true}).Allow, "unlocked")

	// The grant registered a deadline; simulate it firing after expiry.
	deadline, registered := rig.sched.registered[ledger.Tag("reddit")]
	require.True(t, registered)
	rig.clk.Set(deadline)
	coord.OnDeadline(context.Background(), ledger.Tag("reddit"))

	assert.False(t, b.Decide(url, RequestContext{TopLevel: true}).Allow, "relocked after expiry")

	// Exactly the one matching tab was redirected, exactly once.
	redirects := rig.tabs.redirectsFor(1)
	require.Len(t, redirects, 1)
	assert.Contains(t, redirects[0].target, "site=reddit")
	assert.Empty(t, rig.tabs.redirectsFor(2))

	// Best-effort relock notification went out.
	require.Len(t, rig.notifier.messages, 1)
	assert.Contains(t, rig.notifier.messages[0], "Reddit")
}

func TestCoordinator_RedirectFailureDoesNotAbortBatch(t *testing.T) {
	rig := newTestRig(redditSite())
	rig.tabs.tabs = []domain.Tab{
		{ID: 1, URL: "https://reddit.com/a"},
		{ID: 2, URL: "https://reddit.com/b"},
	}
	rig.tabs.failTabs = map[int]bool{1: true}

	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))
	coord := NewCoordinator(b, rig.store, rig.tabs, rig.notifier, nil)

	b.GrantAccess("reddit", 10)
	rig.clk.Advance(10 * time.Minute)
	coord.OnDeadline(context.Background(), ledger.Tag("reddit"))

	// Tab 1 failed; tab 2 still got its redirect and the notification
	// still fired.
	assert.Empty(t, rig.tabs.redirectsFor(1))
	assert.Len(t, rig.tabs.redirectsFor(2), 1)
	assert.Len(t, rig.notifier.messages, 1)
}

func TestCoordinator_OnDeadlineIgnoresUnknownTag(t *testing.T) {
	rig := newTestRig(redditSite())
	b := NewInterceptBackend(&fakeInterceptor{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))
	coord := NewCoordinator(b, rig.store, rig.tabs, rig.notifier, nil)

	coord.OnDeadline(context.Background(), "unrelated:tag")
	assert.Empty(t, rig.tabs.redirects)
	assert.Empty(t, rig.notifier.messages)
}
