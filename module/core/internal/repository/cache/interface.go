package cache

import (
	"context"
	"errors"

	"github.com/nandanugg/geotrack/module/core/domain"
)

var ErrMiss = errors.New("cache miss")

type LastFixCache interface {
	SetLastFix(ctx context.Context, fix *domain.Fix) error
	GetLastFix(ctx context.Context, deviceID string) (*domain.Fix, error)
}
