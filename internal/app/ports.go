package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
)

// MarketDataProvider is the external source of prices, bars and company
// profiles. *marketdata.Client satisfies it.
type MarketDataProvider interface {
	LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error)
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	CompanyProfile(ctx context.Context, symbol string) (*domain.CompanyInfo, error)
}
