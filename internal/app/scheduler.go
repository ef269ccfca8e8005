/**
 * @description
 * Cron scheduler for the watchlist refresh job.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/transfa/market-service/internal/domain"
)

// PriceRefresher re-fetches and stores a symbol's latest price.
type PriceRefresher interface {
	RefreshLatest(ctx context.Context, symbol string) (*domain.PriceRecord, error)
}

// WatchlistScheduler refreshes the latest price of every watchlist symbol on a
// cron schedule.
type WatchlistScheduler struct {
	cron      *cron.Cron
	refresher PriceRefresher
	symbols   []string
	schedule  string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewWatchlistScheduler creates a new scheduler instance. timeout bounds one
// symbol's refresh.
func NewWatchlistScheduler(refresher PriceRefresher, symbols []string, schedule string, timeout time.Duration, logger *slog.Logger) *WatchlistScheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &WatchlistScheduler{
		cron:      c,
		refresher: refresher,
		symbols:   symbols,
		schedule:  schedule,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start registers the refresh job and starts the cron scheduler. An empty
// watchlist schedules nothing.
func (s *WatchlistScheduler) Start() error {
	if len(s.symbols) == 0 {
		s.logger.Info("watchlist empty, refresh job not scheduled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RefreshAll); err != nil {
		s.logger.Error("failed to schedule watchlist refresh job", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled watchlist refresh job", "schedule", s.schedule, "symbols", s.symbols)

	s.cron.Start()
	return nil
}

// RefreshAll refreshes each symbol in turn. A failing symbol is logged and
// does not stop the run.
func (s *WatchlistScheduler) RefreshAll() {
	refreshed := 0
	for _, symbol := range s.symbols {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		record, err := s.refresher.RefreshLatest(ctx, symbol)
		cancel()
		if err != nil {
			s.logger.Warn("watchlist refresh failed", "symbol", symbol, "error", err)
			continue
		}
		refreshed++
		s.logger.Debug("watchlist price refreshed", "symbol", symbol, "price", record.LatestPrice.String())
	}
	s.logger.Info("watchlist refresh completed", "refreshed", refreshed, "total", len(s.symbols))
}

// Stop gracefully stops the cron scheduler.
func (s *WatchlistScheduler) Stop() context.Context {
	return s.cron.Stop()
}
