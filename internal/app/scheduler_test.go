package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
)

type stubRefresher struct {
	mu      sync.Mutex
	called  []string
	failFor map[string]bool
}

func (r *stubRefresher) RefreshLatest(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called = append(r.called, symbol)
	if r.failFor[symbol] {
		return nil, errors.New("provider unavailable")
	}
	return &domain.PriceRecord{Symbol: symbol, LatestPrice: decimal.NewFromInt(1), Timestamp: time.Now()}, nil
}

func TestWatchlistScheduler_RefreshAllContinuesPastFailures(t *testing.T) {
	refresher := &stubRefresher{failFor: map[string]bool{"MSFT": true}}
	s := NewWatchlistScheduler(refresher, []string{"AAPL", "MSFT", "GOOG"}, "*/15 * * * *", time.Second, discardLogger())

	s.RefreshAll()

	if len(refresher.called) != 3 || refresher.called[2] != "GOOG" {
		t.Fatalf("expected every symbol to be attempted, got %v", refresher.called)
	}
}

func TestWatchlistScheduler_Start(t *testing.T) {
	empty := NewWatchlistScheduler(&stubRefresher{}, nil, "*/15 * * * *", time.Second, discardLogger())
	if err := empty.Start(); err != nil {
		t.Fatalf("expected empty watchlist to start cleanly, got %v", err)
	}
	<-empty.Stop().Done()

	bad := NewWatchlistScheduler(&stubRefresher{}, []string{"AAPL"}, "not a schedule", time.Second, discardLogger())
	if err := bad.Start(); err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}

	good := NewWatchlistScheduler(&stubRefresher{}, []string{"AAPL"}, "@every 1h", time.Second, discardLogger())
	if err := good.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-good.Stop().Done()
}
