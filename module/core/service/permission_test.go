package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/geotrack/module/core/domain"
)

func TestPermission_GrantedResolvesImmediately(t *testing.T) {
	perms := &mockPermissions{granted: true}
	g := NewPermissionGate(perms, "", nil, nil)

	var got domain.PermissionState
	g.Request(func(s domain.PermissionState) { got = s })

	assert.Equal(t, domain.PermissionGranted, got)
	assert.Equal(t, 0, perms.requests)
	assert.False(t, g.Pending())
}

func TestPermission_CoalescesPrompts(t *testing.T) {
	perms := &mockPermissions{}
	events := &eventRecorder{}
	g := NewPermissionGate(perms, domain.CapabilityFineLocation, events, nil)

	var results []domain.PermissionState
	g.Request(func(s domain.PermissionState) { results = append(results, s) })
	g.Request(func(s domain.PermissionState) { results = append(results, s) })

	assert.Equal(t, 1, perms.requests)
	assert.True(t, g.Pending())
	assert.Empty(t, results)

	perms.granted = true
	g.OnResult(true)

	assert.Equal(t, []domain.PermissionState{domain.PermissionGranted, domain.PermissionGranted}, results)
	assert.False(t, g.Pending())
	require.Len(t, events.ofType(domain.EventPermissionChanged), 1)
	assert.Equal(t, domain.PermissionGranted, events.events[0].Permission)
}

func TestPermission_Denied(t *testing.T) {
	perms := &mockPermissions{}
	g := NewPermissionGate(perms, "", nil, nil)

	var got domain.PermissionState
	g.Request(func(s domain.PermissionState) { got = s })
	g.OnResult(false)

	assert.Equal(t, domain.PermissionDenied, got)
	assert.Equal(t, domain.PermissionDenied, g.State())
}

func TestPermission_RequestErrorResolvesDenied(t *testing.T) {
	perms := &mockPermissions{requestFn: func(string) error { return errors.New("no prompt surface") }}
	g := NewPermissionGate(perms, "", nil, nil)

	var got domain.PermissionState
	g.Request(func(s domain.PermissionState) { got = s })

	assert.Equal(t, domain.PermissionDenied, got)
	assert.False(t, g.Pending())
}

func TestPermission_RevokeDetectedOnCheck(t *testing.T) {
	perms := &mockPermissions{granted: true}
	events := &eventRecorder{}
	g := NewPermissionGate(perms, "", events, nil)

	assert.Equal(t, domain.PermissionUnknown, g.State())
	assert.Equal(t, domain.PermissionGranted, g.Check())

	perms.granted = false
	assert.Equal(t, domain.PermissionDenied, g.Check())
	assert.Equal(t, domain.PermissionDenied, g.Check())

	changed := events.ofType(domain.EventPermissionChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, domain.PermissionGranted, changed[0].Permission)
	assert.Equal(t, domain.PermissionDenied, changed[1].Permission)
}

func TestPermission_ExistingGrantEmitsChangeOnce(t *testing.T) {
	perms := &mockPermissions{granted: true}
	events := &eventRecorder{}
	g := NewPermissionGate(perms, "", events, nil)

	calls := 0
	g.Request(func(domain.PermissionState) { calls++ })
	g.Request(func(domain.PermissionState) { calls++ })
	g.Check()

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, perms.requests)
	changed := events.ofType(domain.EventPermissionChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, domain.PermissionGranted, changed[0].Permission)
}
