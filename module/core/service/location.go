package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/cache"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
)

// LocationService stores device fixes and serves the latest one from cache.
type LocationService struct {
	repo   database.LocationRepository
	cache  cache.LastFixCache
	logger *slog.Logger
}

func NewLocationService(repo database.LocationRepository, c cache.LastFixCache, logger *slog.Logger) *LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationService{repo: repo, cache: c, logger: logger}
}

// SaveLocation stores fix. A cache failure is logged but does not fail the
// save.
func (s *LocationService) SaveLocation(ctx context.Context, fix *domain.Fix) error {
	if err := s.repo.Insert(ctx, fix); err != nil {
		return fmt.Errorf("save location %s: %w", fix.DeviceID, err)
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.SetLastFix(ctx, fix); err != nil {
		s.logger.Warn("cache last fix", "device_id", fix.DeviceID, "error", err)
	}
	return nil
}

func (s *LocationService) GetLatest(ctx context.Context, deviceID string) (*domain.Fix, error) {
	if s.cache != nil {
		fix, err := s.cache.GetLastFix(ctx, deviceID)
		if err == nil {
			return fix, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("read cached fix", "device_id", deviceID, "error", err)
		}
	}
	return s.repo.GetLatest(ctx, deviceID)
}

func (s *LocationService) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.Fix, error) {
	return s.repo.GetHistory(ctx, query)
}
