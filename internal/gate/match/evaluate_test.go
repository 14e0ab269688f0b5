package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haltgate/haltgate/internal/gate/domain"
)

func testSite(id string, enabled bool, rules ...domain.Rule) domain.Site {
	return domain.Site{
		ID:        id,
		Name:      id,
		Rules:     rules,
		Enabled:   enabled,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate_BlockRule(t *testing.T) {
	site := testSite("s1", true, domain.Rule{Pattern: "reddit.com", Allow: false})
	assert.True(t, Evaluate("https://www.reddit.com/r/test", site))
	assert.False(t, Evaluate("https://example.com", site))
}

func TestEvaluate_DisabledSiteNeverBlocks(t *testing.T) {
	site := testSite("s1", false,
		domain.Rule{Pattern: "*.reddit.com", Allow: false},
		domain.Rule{Pattern: "reddit.com/r/all", Allow: false},
	)
	assert.False(t, Evaluate("https://reddit.com/r/all", site))
}

func TestEvaluate_EmptyRulesMatchNothing(t *testing.T) {
	site := testSite("s1", true)
	assert.False(t, Evaluate("https://reddit.com", site))
}

func TestEvaluate_AllowOverridesEarlierBlock(t *testing.T) {
	site := testSite("s1", true,
		domain.Rule{Pattern: "*.reddit.com", Allow: false},
		domain.Rule{Pattern: "reddit.com/r/golang", Allow: true},
	)
	assert.False(t, Evaluate("https://reddit.com/r/golang/comments", site))
	assert.True(t, Evaluate("https://reddit.com/r/all", site))
}

func TestEvaluate_AllowShortCircuitsLaterBlocks(t *testing.T) {
	// block A, allow A, block A: the allow ends the scan, so the
	// trailing block never re-blocks.
	site := testSite("s1", true,
		domain.Rule{Pattern: "reddit.com", Allow: false},
		domain.Rule{Pattern: "reddit.com", Allow: true},
		domain.Rule{Pattern: "reddit.com", Allow: false},
	)
	assert.False(t, Evaluate("https://reddit.com", site))
}

func TestEvaluate_AllowFirstWinsRegardlessOfLaterBlocks(t *testing.T) {
	site := testSite("s1", true,
		domain.Rule{Pattern: "reddit.com", Allow: true},
		domain.Rule{Pattern: "reddit.com", Allow: false},
	)
	assert.False(t, Evaluate("https://reddit.com", site))
}

func TestFindMatchingSite_FirstMatchWins(t *testing.T) {
	first := testSite("first", true, domain.Rule{Pattern: "*.example.com", Allow: false})
	second := testSite("second", true, domain.Rule{Pattern: "example.com", Allow: false})

	got, found := FindMatchingSite("https://example.com", []domain.Site{first, second})
	assert.True(t, found)
	assert.Equal(t, "first", got.ID)

	// Reversing the list reverses the winner.
	got, found = FindMatchingSite("https://example.com", []domain.Site{second, first})
	assert.True(t, found)
	assert.Equal(t, "second", got.ID)
}

func TestFindMatchingSite_SkipsNonMatching(t *testing.T) {
	disabled := testSite("disabled", false, domain.Rule{Pattern: "example.com", Allow: false})
	matching := testSite("matching", true, domain.Rule{Pattern: "example.com", Allow: false})

	got, found := FindMatchingSite("https://example.com", []domain.Site{disabled, matching})
	assert.True(t, found)
	assert.Equal(t, "matching", got.ID)

	_, found = FindMatchingSite("https://other.org", []domain.Site{disabled, matching})
	assert.False(t, found)
}
