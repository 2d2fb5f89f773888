package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/geotrack/module/core/domain"
)

func writeSession(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSession_Defaults(t *testing.T) {
	s, err := LoadSession("")
	require.NoError(t, err)

	updates, err := s.UpdateConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityBalanced, updates.Priority)
	assert.Equal(t, 10*time.Second, updates.Interval)

	specs, err := s.GeofenceSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "wku-main-campus", specs[0].ID)
	assert.Equal(t, 50.0, specs[0].RadiusMeters)
	assert.Equal(t, domain.TriggerEnter|domain.TriggerExit, specs[0].Triggers)
	assert.Equal(t, "WKU Main Campus", s.Titles()["wku-main-campus"])
}

func TestLoadSession_File(t *testing.T) {
	path := writeSession(t, `
updates:
  priority: high_accuracy
  interval: 2s
  fastest_interval: 1s
geofences:
  - id: library
    title: Helm Library
    latitude: 36.9857
    longitude: -86.4557
    radius_meters: 30
    triggers: [enter, dwell]
    dwell_delay: 1m
    expiration: 24h
  - id: stadium
    latitude: 36.9848
    longitude: -86.4594
    radius_meters: 120
    triggers: [exit]
`)

	s, err := LoadSession(path)
	require.NoError(t, err)

	updates, err := s.UpdateConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHighAccuracy, updates.Priority)
	assert.Equal(t, 2*time.Second, updates.Interval)
	assert.Equal(t, time.Second, updates.FastestInterval)

	specs, err := s.GeofenceSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, time.Minute, specs[0].DwellDelay)
	assert.Equal(t, 24*time.Hour, specs[0].Expiration)
	assert.True(t, specs[0].Triggers.Has(domain.TriggerDwell))
	assert.Equal(t, map[string]string{"library": "Helm Library"}, s.Titles())
}

func TestSession_UpdateConfig_Invalid(t *testing.T) {
	s := defaultSession()
	s.Updates.Interval = 2 * time.Second
	s.Updates.FastestInterval = 5 * time.Second
	_, err := s.UpdateConfig()
	assert.Error(t, err)

	s = defaultSession()
	s.Updates.Priority = "turbo"
	_, err = s.UpdateConfig()
	assert.Error(t, err)
}

func TestSession_UpdateConfig_FastestDefaultsToInterval(t *testing.T) {
	s := defaultSession()
	s.Updates.FastestInterval = 0

	cfg, err := s.UpdateConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.Interval, cfg.FastestInterval)
}

func TestSession_GeofenceSpecs_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *GeofenceConfig)
	}{
		{"zero radius", func(g *GeofenceConfig) { g.RadiusMeters = 0 }},
		{"unknown trigger", func(g *GeofenceConfig) { g.Triggers = []string{"linger"} }},
		{"no triggers", func(g *GeofenceConfig) { g.Triggers = nil }},
		{"dwell without delay", func(g *GeofenceConfig) { g.Triggers = []string{"dwell"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSession()
			tt.mutate(&s.Geofences[0])
			_, err := s.GeofenceSpecs()
			assert.True(t, errors.Is(err, domain.ErrInvalidSpec), "got %v", err)
		})
	}
}

func TestSession_GeofenceSpecs_DuplicateID(t *testing.T) {
	s := defaultSession()
	s.Geofences = append(s.Geofences, s.Geofences[0])

	_, err := s.GeofenceSpecs()
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestLoadSession_Errors(t *testing.T) {
	_, err := LoadSession(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSession(writeSession(t, "updates: [not, a, map]"))
	assert.Error(t, err)
}
