package enforcer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_Selection(t *testing.T) {
	rig := newTestRig(redditSite())
	both := Capabilities{Interceptor: &fakeInterceptor{}, Directives: &fakeTable{}}

	tests := []struct {
		name string
		mode BackendMode
		caps Capabilities
		want any
	}{
		{"auto prefers declarative", ModeAuto, both, &declarativeBackend{}},
		{"auto falls back to intercept", ModeAuto, Capabilities{Interceptor: &fakeInterceptor{}}, &interceptBackend{}},
		{"auto with nothing disables", ModeAuto, Capabilities{}, &disabledBackend{}},
		{"forced intercept", ModeIntercept, both, &interceptBackend{}},
		{"forced declarative", ModeDeclarative, both, &declarativeBackend{}},
		{"forced intercept without capability disables", ModeIntercept, Capabilities{Directives: &fakeTable{}}, &disabledBackend{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBackend(tc.mode, tc.caps, rig.options())
			assert.IsType(t, tc.want, b)
		})
	}
}

func TestDisabledBackend_AllowsButKeepsLedger(t *testing.T) {
	rig := newTestRig(redditSite())
	b := NewBackend(ModeAuto, Capabilities{}, rig.options())
	require.NoError(t, b.Initialize(context.Background()))

	assert.True(t, b.Decide("https://reddit.com", RequestContext{TopLevel: true}).Allow)

	_, ok := b.GrantAccess("reddit", 30)
	require.True(t, ok)
	assert.True(t, b.IsSiteUnlocked("reddit"))
	b.RevokeAccess("reddit")
	assert.False(t, b.IsSiteUnlocked("reddit"))
}

func TestParseBackendMode(t *testing.T) {
	assert.Equal(t, ModeIntercept, ParseBackendMode("intercept"))
	assert.Equal(t, ModeDeclarative, ParseBackendMode("declarative"))
	assert.Equal(t, ModeAuto, ParseBackendMode("auto"))
	assert.Equal(t, ModeAuto, ParseBackendMode("bogus"))
}
