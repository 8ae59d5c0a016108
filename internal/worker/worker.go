package worker

import (
	"context"

	"sinilikhain/internal/broker"
	"sinilikhain/internal/service"
	"sinilikhain/internal/util"

	"go.uber.org/zap"
)

// StatsWorker consumes marketplace events and refreshes artisan statistics
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(consumer *broker.Consumer, stats *service.StatsService) *StatsWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnAny(stats.HandleEvent)

	return &StatsWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stats worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *StatsWorker) Stop() error {
	w.logger.Info("Stopping stats worker")
	return w.consumer.Close()
}
