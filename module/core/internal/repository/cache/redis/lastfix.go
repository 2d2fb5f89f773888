package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/cache"
)

var _ cache.LastFixCache = (*LastFixCache)(nil)

const keyPrefix = "geotrack:lastfix:"

// LastFixCache keeps the most recent fix per device so a restarted process
// can answer last-known-location queries without a database round trip.
type LastFixCache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewLastFixCache(client goredis.Cmdable, ttl time.Duration) *LastFixCache {
	return &LastFixCache{client: client, ttl: ttl}
}

type cachedFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

func (c *LastFixCache) SetLastFix(ctx context.Context, fix *domain.Fix) error {
	body, err := json.Marshal(cachedFix{
		Latitude:  fix.Point.Lat,
		Longitude: fix.Point.Lon,
		Timestamp: fix.Timestamp.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal fix: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+fix.DeviceID, body, c.ttl).Err()
}

func (c *LastFixCache) GetLastFix(ctx context.Context, deviceID string) (*domain.Fix, error) {
	body, err := c.client.Get(ctx, keyPrefix+deviceID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, err
	}

	var cf cachedFix
	if err := json.Unmarshal(body, &cf); err != nil {
		return nil, fmt.Errorf("unmarshal fix: %w", err)
	}
	return &domain.Fix{
		DeviceID:  deviceID,
		Point:     domain.GeoPoint{Lat: cf.Latitude, Lon: cf.Longitude},
		Timestamp: time.UnixMilli(cf.Timestamp),
	}, nil
}
