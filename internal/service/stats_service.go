package service

import (
	"context"
	"fmt"

	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"go.uber.org/zap"
)

// StatsService keeps the denormalized artisan statistics current
type StatsService struct {
	store  StatsRepository
	logger *zap.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(store StatsRepository) *StatsService {
	return &StatsService{store: store, logger: util.GetLogger()}
}

// RecomputeArtisanStats recalculates and stores totalProducts, averageRating
// and salesCompleted for one artisan
func (s *StatsService) RecomputeArtisanStats(ctx context.Context, artisanID int64) (*models.ArtisanStats, error) {
	stats, err := s.store.ComputeArtisanStats(ctx, artisanID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats for artisan %d: %w", artisanID, err)
	}
	if err := s.store.SaveArtisanStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to save stats for artisan %d: %w", artisanID, err)
	}
	util.StatsRecomputedTotal.Inc()
	return stats, nil
}

// HandleEvent recomputes stats for every artisan an event touches. Events
// already processed are skipped.
func (s *StatsService) HandleEvent(ctx context.Context, base models.BaseEvent, _ []byte) error {
	if base.EventID != "" {
		processed, err := s.store.IsEventProcessed(ctx, base.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event %s: %w", base.EventID, err)
		}
		if processed {
			s.logger.Debug("Event already processed", zap.String("event_id", base.EventID))
			return nil
		}
	}

	for _, artisanID := range base.ArtisanIDs {
		stats, err := s.RecomputeArtisanStats(ctx, artisanID)
		if err != nil {
			return err
		}
		s.logger.Debug("Artisan stats recomputed",
			zap.Int64("artisan_id", artisanID),
			zap.Int("total_products", stats.TotalProducts),
			zap.String("average_rating", stats.AverageRating.String()),
			zap.Int("sales_completed", stats.SalesCompleted))
	}

	if base.EventID == "" {
		return nil
	}
	return s.store.MarkEventProcessed(ctx, base.EventID, base.EventType)
}
