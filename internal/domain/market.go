package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for history bounds and bar keys.
const DateLayout = "2006-01-02"

// PriceRecord is the last known price for a symbol. There is exactly one
// record per symbol; every fetch overwrites it.
type PriceRecord struct {
	Symbol      string          `json:"symbol"`
	LatestPrice decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Bar is one trading session. Bars are never persisted.
type Bar struct {
	Date   time.Time       `json:"-"`
	Open   decimal.Decimal `json:"Open"`
	High   decimal.Decimal `json:"High"`
	Low    decimal.Decimal `json:"Low"`
	Close  decimal.Decimal `json:"Close"`
	Volume decimal.Decimal `json:"Volume"`
}

// DateKey returns the bar's calendar date as YYYY-MM-DD.
func (b Bar) DateKey() string {
	return b.Date.Format(DateLayout)
}

// CompanyInfo is the subset of the provider's company profile we expose.
type CompanyInfo struct {
	Symbol    string  `json:"symbol"`
	Name      *string `json:"name"`
	Industry  *string `json:"industry"`
	Sector    *string `json:"sector"`
	MarketCap *int64  `json:"market_cap"`
	Website   *string `json:"website"`
}

// Verdict is the outcome of the moving-average crossover rule.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictSell Verdict = "SELL"
	VerdictHold Verdict = "HOLD"
)

// Recommendation is derived from a bar sequence and never stored.
type Recommendation struct {
	Symbol      string          `json:"symbol"`
	Verdict     Verdict         `json:"verdict"`
	LatestPrice decimal.Decimal `json:"latest_price"`
	SMA50       decimal.Decimal `json:"sma_50"`
	SMA200      decimal.Decimal `json:"sma_200"`
	AsOf        string          `json:"as_of"`
}

// PriceUpdatedEvent is published after a PriceRecord upsert.
type PriceUpdatedEvent struct {
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
