package tabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haltgate/haltgate/internal/gate/domain"
)

func TestRegistry_ListSortedByID(t *testing.T) {
	r := New()
	r.Upsert(domain.Tab{ID: 3, URL: "https://c.com"})
	r.Upsert(domain.Tab{ID: 1, URL: "https://a.com"})
	r.Upsert(domain.Tab{ID: 2, URL: "https://b.com"})

	got := r.List()
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].ID, got[1].ID, got[2].ID})
}

func TestRegistry_UpsertUpdatesURL(t *testing.T) {
	r := New()
	r.Upsert(domain.Tab{ID: 1, URL: "https://a.com"})
	r.Upsert(domain.Tab{ID: 1, URL: "https://a.com/next"})

	got := r.List()
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.com/next", got[0].URL)
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	r.Upsert(domain.Tab{ID: 1, URL: "https://a.com"})
	r.Remove(1)
	assert.Empty(t, r.List())

	r.Remove(42) // unknown id is a no-op
}

func TestRegistry_Redirect(t *testing.T) {
	r := New()
	var hookTab int
	var hookURL string
	r.OnRedirect = func(tabID int, targetURL string) {
		hookTab = tabID
		hookURL = targetURL
	}
	r.Upsert(domain.Tab{ID: 7, URL: "https://reddit.com"})

	require.NoError(t, r.Redirect(7, "haltgate://blocked?site=reddit"))
	assert.Equal(t, 7, hookTab)
	assert.Equal(t, "haltgate://blocked?site=reddit", hookURL)
	assert.Equal(t, "haltgate://blocked?site=reddit", r.List()[0].URL)
}

func TestRegistry_RedirectUnknownTab(t *testing.T) {
	r := New()
	err := r.Redirect(99, "https://anywhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99")
}
