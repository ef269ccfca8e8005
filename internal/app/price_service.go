/**
 * @description
 * PriceService is the price cache and the pass-through to the market-data
 * provider for history and company profiles.
 *
 * @notes
 * - The latest price is re-fetched when the stored record is older than maxAge
 *   (maxAge 0 always re-fetches). The fetched value is upserted as one record.
 * - Concurrent misses for the same symbol share one provider call. The shared call
 *   is detached from the caller's cancellation and bounded by fetchTimeout, so a
 *   disconnecting client never aborts a write another caller is waiting on.
 * - Provider calls are never retried here.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/transfa/market-service/internal/domain"
	"github.com/transfa/market-service/internal/store"
	"github.com/transfa/market-service/pkg/marketdata"
	"github.com/transfa/market-service/pkg/rabbitmq"
	"golang.org/x/sync/singleflight"
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9.^=\-]{1,32}$`)

// PriceServiceConfig holds the tunables of PriceService.
type PriceServiceConfig struct {
	MaxAge       time.Duration
	FetchTimeout time.Duration
}

// PriceService serves latest prices, historical bars and company profiles.
type PriceService struct {
	prices   store.PriceRepository
	provider MarketDataProvider
	events   rabbitmq.Publisher
	logger   *slog.Logger
	cfg      PriceServiceConfig
	now      func() time.Time
	inflight singleflight.Group
}

// NewPriceService creates a new PriceService.
func NewPriceService(
	prices store.PriceRepository,
	provider MarketDataProvider,
	events rabbitmq.Publisher,
	logger *slog.Logger,
	cfg PriceServiceConfig,
) *PriceService {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	if events == nil {
		events = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	return &PriceService{
		prices:   prices,
		provider: provider,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// GetLatest returns the latest price for symbol, serving the stored record
// while it is younger than MaxAge and re-fetching otherwise.
func (s *PriceService) GetLatest(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	symbol, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}

	if s.cfg.MaxAge > 0 {
		cached, err := s.prices.GetLatestPrice(ctx, symbol)
		switch {
		case err == nil && s.now().Sub(cached.Timestamp) < s.cfg.MaxAge:
			return cached, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			s.logger.Warn("price cache read failed, fetching from provider", "symbol", symbol, "error", err)
		}
	}

	return s.refresh(ctx, symbol)
}

// RefreshLatest fetches and stores the latest price regardless of the age of
// the stored record.
func (s *PriceService) RefreshLatest(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	symbol, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, symbol)
}

func (s *PriceService) refresh(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	ch := s.inflight.DoChan(symbol, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()
		return s.fetchAndStore(fetchCtx, symbol)
	})

	select {
	case <-ctx.Done():
		return nil, domain.UpstreamError("request cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		record := *res.Val.(*domain.PriceRecord)
		return &record, nil
	}
}

func (s *PriceService) fetchAndStore(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	price, err := s.provider.LatestClose(ctx, symbol)
	if err != nil {
		return nil, providerError(err, "no price data found for symbol "+symbol)
	}

	record := &domain.PriceRecord{
		Symbol:      symbol,
		LatestPrice: price,
		Timestamp:   s.now().UTC(),
	}
	if err := s.prices.UpsertLatestPrice(ctx, record); err != nil {
		return nil, domain.UpstreamError("could not store latest price", err)
	}

	event := domain.PriceUpdatedEvent{Symbol: symbol, Price: price.String(), Timestamp: record.Timestamp}
	if err := s.events.Publish(ctx, rabbitmq.ExchangeMarketEvents, rabbitmq.RoutingKeyPriceUpdated, event); err != nil {
		s.logger.Error("failed to publish price.updated event", "symbol", symbol, "error", err)
	}
	return record, nil
}

// GetHistory returns the daily bars between start and end inclusive. Both
// bounds are required YYYY-MM-DD dates.
func (s *PriceService) GetHistory(ctx context.Context, symbol, start, end string) ([]domain.Bar, error) {
	symbol, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return nil, domain.ValidationError("please provide 'start' and 'end' query parameters in YYYY-MM-DD format")
	}
	from, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		return nil, domain.ValidationError("'start' must be a date in YYYY-MM-DD format")
	}
	to, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		return nil, domain.ValidationError("'end' must be a date in YYYY-MM-DD format")
	}

	const emptyRange = "no historical data found for the given date range"
	if from.After(to) {
		return nil, domain.NotFoundError(emptyRange, nil)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	bars, err := s.provider.DailyBars(fetchCtx, symbol, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, providerError(err, emptyRange)
	}

	inRange := make([]domain.Bar, 0, len(bars))
	for _, bar := range bars {
		if bar.Date.Before(from) || bar.Date.After(to) {
			continue
		}
		inRange = append(inRange, bar)
	}
	if len(inRange) == 0 {
		return nil, domain.NotFoundError(emptyRange, nil)
	}
	return inRange, nil
}

// TrailingBars returns the daily bars of the last months calendar months up to
// and including today.
func (s *PriceService) TrailingBars(ctx context.Context, symbol string, months int) ([]domain.Bar, error) {
	symbol, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	start := end.AddDate(0, -months, 0)

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	bars, err := s.provider.DailyBars(fetchCtx, symbol, start, end)
	if err != nil {
		return nil, providerError(err, "no price history found for symbol "+symbol)
	}
	return bars, nil
}

// GetCompanyInfo returns the provider's company profile for symbol.
func (s *PriceService) GetCompanyInfo(ctx context.Context, symbol string) (*domain.CompanyInfo, error) {
	symbol, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	info, err := s.provider.CompanyProfile(fetchCtx, symbol)
	if err != nil {
		return nil, providerError(err, "no company found for symbol "+symbol)
	}
	return info, nil
}

func validateSymbol(raw string) (string, error) {
	symbol := strings.TrimSpace(raw)
	if symbol == "" {
		return "", domain.ValidationError("symbol is required")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", domain.ValidationError("symbol contains invalid characters")
	}
	return symbol, nil
}

// providerError maps market-data failures onto the domain taxonomy. Missing
// symbols and empty ranges become not_found; everything else is upstream.
func providerError(err error, notFoundMessage string) error {
	switch {
	case errors.Is(err, marketdata.ErrSymbolNotFound), errors.Is(err, marketdata.ErrNoData):
		return domain.NotFoundError(notFoundMessage, err)
	default:
		return domain.UpstreamError("market data provider request failed", err)
	}
}
