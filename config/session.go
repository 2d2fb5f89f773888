package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nandanugg/geotrack/module/core/domain"
)

// Session is the YAML file describing what the location session does once
// connected.
type Session struct {
	Updates   UpdatesConfig    `yaml:"updates"`
	Geofences []GeofenceConfig `yaml:"geofences"`
}

type UpdatesConfig struct {
	Priority        string        `yaml:"priority"`
	Interval        time.Duration `yaml:"interval"`
	FastestInterval time.Duration `yaml:"fastest_interval"`
}

type GeofenceConfig struct {
	ID           string        `yaml:"id"`
	Title        string        `yaml:"title"`
	Latitude     float64       `yaml:"latitude"`
	Longitude    float64       `yaml:"longitude"`
	RadiusMeters float64       `yaml:"radius_meters"`
	Triggers     []string      `yaml:"triggers"`
	DwellDelay   time.Duration `yaml:"dwell_delay"`
	Expiration   time.Duration `yaml:"expiration"`
}

func defaultSession() *Session {
	return &Session{
		Updates: UpdatesConfig{
			Priority:        "balanced",
			Interval:        10 * time.Second,
			FastestInterval: 5 * time.Second,
		},
		Geofences: []GeofenceConfig{{
			ID:           "wku-main-campus",
			Title:        "WKU Main Campus",
			Latitude:     36.987336,
			Longitude:    -86.451221,
			RadiusMeters: 50,
			Triggers:     []string{"enter", "exit"},
		}},
	}
}

// LoadSession reads the session file at path over the defaults. An empty
// path returns the defaults.
func LoadSession(path string) (*Session, error) {
	cfg := defaultSession()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return cfg, nil
}

func (s *Session) UpdateConfig() (domain.LocationUpdateConfig, error) {
	priority, err := domain.ParsePriority(s.Updates.Priority)
	if err != nil {
		return domain.LocationUpdateConfig{}, err
	}
	cfg := domain.LocationUpdateConfig{
		Priority:        priority,
		Interval:        s.Updates.Interval,
		FastestInterval: s.Updates.FastestInterval,
	}
	if cfg.FastestInterval == 0 {
		cfg.FastestInterval = cfg.Interval
	}
	if err := cfg.Validate(); err != nil {
		return domain.LocationUpdateConfig{}, err
	}
	return cfg, nil
}

func (s *Session) GeofenceSpecs() ([]domain.GeofenceSpec, error) {
	specs := make([]domain.GeofenceSpec, 0, len(s.Geofences))
	seen := make(map[string]bool, len(s.Geofences))
	for _, g := range s.Geofences {
		if seen[g.ID] {
			return nil, fmt.Errorf("geofence %s: %w: duplicate id", g.ID, domain.ErrInvalidSpec)
		}
		seen[g.ID] = true

		triggers, err := domain.ParseTriggers(g.Triggers)
		if err != nil {
			return nil, fmt.Errorf("geofence %s: %w", g.ID, err)
		}
		spec := domain.GeofenceSpec{
			ID:           g.ID,
			Center:       domain.GeoPoint{Lat: g.Latitude, Lon: g.Longitude},
			RadiusMeters: g.RadiusMeters,
			Expiration:   g.Expiration,
			Triggers:     triggers,
			DwellDelay:   g.DwellDelay,
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("geofence %s: %w", g.ID, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Titles maps geofence ids to their marker titles.
func (s *Session) Titles() map[string]string {
	titles := make(map[string]string, len(s.Geofences))
	for _, g := range s.Geofences {
		if g.Title != "" {
			titles[g.ID] = g.Title
		}
	}
	return titles
}
