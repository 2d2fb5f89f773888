package domain

import (
	"fmt"
	"time"
)

type LocationSource int

const (
	SourceCached LocationSource = iota
	SourceFresh
)

func (s LocationSource) String() string {
	if s == SourceCached {
		return "cached"
	}
	return "fresh"
}

func (s LocationSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type LocationUpdate struct {
	Point     GeoPoint       `json:"point"`
	Timestamp time.Time      `json:"timestamp"`
	Source    LocationSource `json:"source"`
}

type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalanced
	PriorityLowPower
)

var priorityNames = map[Priority]string{
	PriorityHighAccuracy: "high_accuracy",
	PriorityBalanced:     "balanced",
	PriorityLowPower:     "low_power",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return "unknown"
}

func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

type LocationUpdateConfig struct {
	Priority        Priority
	Interval        time.Duration
	FastestInterval time.Duration
}

func (c LocationUpdateConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval: must be positive")
	}
	if c.FastestInterval <= 0 || c.FastestInterval > c.Interval {
		return fmt.Errorf("fastest_interval: must be positive and not exceed interval")
	}
	if _, ok := priorityNames[c.Priority]; !ok {
		return fmt.Errorf("priority: unknown value %d", c.Priority)
	}
	return nil
}

// Fix is one raw position report from the device.
type Fix struct {
	DeviceID  string    `json:"device_id"`
	Point     GeoPoint  `json:"point"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryQuery struct {
	DeviceID string
	Start    time.Time
	End      time.Time
}
