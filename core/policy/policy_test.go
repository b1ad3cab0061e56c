package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/domain/function"
)

func TestPermissivePolicyAllowsEverything(t *testing.T) {
	e := New(function.NetworkPolicy{})
	assert.NoError(t, e.CheckOutbound("https", "anything.example", 443))
}

func TestHostAllowListDeniesUnlisted(t *testing.T) {
	e := New(function.NetworkPolicy{AllowedHosts: []string{"api.allowed.example"}})

	assert.NoError(t, e.CheckOutbound("https", "api.allowed.example", 443))

	err := e.CheckOutbound("https", "blocked.example", 443)
	assert.Error(t, err)
	assert.True(t, apierr.OfKind(err, apierr.PolicyDenied))
}

func TestWildcardHostAllowList(t *testing.T) {
	e := New(function.NetworkPolicy{AllowedHosts: []string{"*.example.com"}})
	assert.NoError(t, e.CheckOutbound("https", "sub.example.com", 443))
	assert.NoError(t, e.CheckOutbound("https", "example.com", 443))
	assert.Error(t, e.CheckOutbound("https", "example.org", 443))
}

func TestPortRangeEnforced(t *testing.T) {
	e := New(function.NetworkPolicy{AllowedPortMin: 8000, AllowedPortMax: 9000})
	assert.NoError(t, e.CheckOutbound("https", "any.example", 8080))
	assert.Error(t, e.CheckOutbound("https", "any.example", 80))
}

func TestCheckRestrictedAlwaysDenies(t *testing.T) {
	e := New(function.NetworkPolicy{})
	err := e.CheckRestricted(APIServerBind)
	assert.Error(t, err)
	assert.True(t, apierr.OfKind(err, apierr.PolicyDenied))
}

func TestResolveLimitsUsesOverrides(t *testing.T) {
	d := &function.Descriptor{Timeout: 5 * time.Second, HeapCapMB: 512}
	l := ResolveLimits(d, 30*time.Second, 256)
	assert.Equal(t, 5*time.Second, l.Timeout)
	assert.Equal(t, 512, l.HeapCapMB)
}

func TestResolveLimitsFallsBackToDefaults(t *testing.T) {
	d := &function.Descriptor{}
	l := ResolveLimits(d, 30*time.Second, 256)
	assert.Equal(t, 30*time.Second, l.Timeout)
	assert.Equal(t, 256, l.HeapCapMB)
}
