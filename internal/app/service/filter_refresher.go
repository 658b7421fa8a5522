package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultFilterRefreshInterval = 10 * time.Minute

// FilterRefresher periodically rebuilds the custom URL filter so deleted
// mappings stop producing store lookups.
type FilterRefresher struct {
	logger   *zap.Logger
	mappings MappingService
	interval time.Duration
	stopChan chan struct{}
}

// NewFilterRefresher creates a refresher; a non-positive interval uses the default.
func NewFilterRefresher(logger *zap.Logger, mappings MappingService, interval time.Duration) *FilterRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultFilterRefreshInterval
	}
	return &FilterRefresher{
		logger:   logger,
		mappings: mappings,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic rebuilds.
func (r *FilterRefresher) Start() {
	go r.run()
}

// Stop stops the periodic rebuilds.
func (r *FilterRefresher) Stop() {
	close(r.stopChan)
}

func (r *FilterRefresher) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.stopChan:
			r.logger.Info("url filter refresher stopped")
			return
		}
	}
}

func (r *FilterRefresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.mappings.RebuildFilter(ctx); err != nil {
		r.logger.Error("failed to rebuild url filter", zap.Error(err))
	}
}
