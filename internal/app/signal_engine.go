package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
)

const (
	shortWindow = 50
	longWindow  = 200
)

// BarSource supplies the trailing daily bars the signal is computed from.
type BarSource interface {
	TrailingBars(ctx context.Context, symbol string, months int) ([]domain.Bar, error)
}

// SignalEngine derives a BUY/SELL/HOLD recommendation from the 50 and 200
// session simple moving averages of the closing price.
type SignalEngine struct {
	bars           BarSource
	lookbackMonths int
}

// NewSignalEngine creates a SignalEngine reading lookbackMonths of history.
func NewSignalEngine(bars BarSource, lookbackMonths int) *SignalEngine {
	if lookbackMonths <= 0 {
		lookbackMonths = 12
	}
	return &SignalEngine{bars: bars, lookbackMonths: lookbackMonths}
}

// Recommend fetches the trailing bars for symbol and evaluates them.
func (e *SignalEngine) Recommend(ctx context.Context, symbol string) (*domain.Recommendation, error) {
	bars, err := e.bars.TrailingBars(ctx, symbol, e.lookbackMonths)
	if err != nil {
		return nil, err
	}
	return Evaluate(symbol, bars)
}

// Evaluate applies the crossover rule to bars, which must be ordered oldest
// first. Fewer than 200 bars leave the long average undefined and produce an
// insufficient_history error instead of a verdict.
func Evaluate(symbol string, bars []domain.Bar) (*domain.Recommendation, error) {
	if len(bars) < longWindow {
		return nil, &domain.Error{
			Kind:    domain.KindInsufficientHistory,
			Message: fmt.Sprintf("at least %d daily bars are required, got %d", longWindow, len(bars)),
		}
	}

	latest := bars[len(bars)-1].Close
	sma50 := SMA(bars, shortWindow)
	sma200 := SMA(bars, longWindow)

	verdict := domain.VerdictHold
	switch {
	case sma50.GreaterThan(sma200) && latest.GreaterThan(sma50):
		verdict = domain.VerdictBuy
	case sma50.LessThan(sma200) && latest.LessThan(sma50):
		verdict = domain.VerdictSell
	}

	return &domain.Recommendation{
		Symbol:      symbol,
		Verdict:     verdict,
		LatestPrice: latest,
		SMA50:       sma50.Round(4),
		SMA200:      sma200.Round(4),
		AsOf:        bars[len(bars)-1].DateKey(),
	}, nil
}

// SMA is the mean close of the last window bars. The caller guarantees
// len(bars) >= window > 0.
func SMA(bars []domain.Bar, window int) decimal.Decimal {
	sum := decimal.Zero
	for _, bar := range bars[len(bars)-window:] {
		sum = sum.Add(bar.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(window)))
}
