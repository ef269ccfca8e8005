package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult  `json:"result"`
		Error  *providerError `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// DailyBars returns the daily bars whose session date falls in [start, end),
// oldest first. Sessions the provider reports with null prices are skipped.
func (c *Client) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	return c.chart(ctx, symbol, q)
}

// LatestClose returns the close of the most recent trading session. During
// market hours that is the current regular-session price.
func (c *Client) LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("range", "5d")
	q.Set("interval", "1d")
	bars, err := c.chart(ctx, symbol, q)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return bars[len(bars)-1].Close, nil
}

func (c *Client) chart(ctx context.Context, symbol string, q url.Values) ([]domain.Bar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var chart chartResponse
	if err := decode(resp, &chart, func() *providerError { return chart.Chart.Error }); err != nil {
		return nil, err
	}
	if len(chart.Chart.Result) == 0 {
		return nil, ErrSymbolNotFound
	}

	bars := toBars(chart.Chart.Result[0])
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}

func toBars(result chartResult) []domain.Bar {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]
	exchange := time.FixedZone("exchange", result.Meta.GMTOffset)

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || cl == nil {
			continue
		}
		vol := decimal.Zero
		if v := at(quote.Volume, i); v != nil {
			vol = decimal.NewFromFloat(*v)
		}

		local := time.Unix(ts, 0).In(exchange)
		bars = append(bars, domain.Bar{
			Date:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
			Open:   decimal.NewFromFloat(*o),
			High:   decimal.NewFromFloat(*h),
			Low:    decimal.NewFromFloat(*l),
			Close:  decimal.NewFromFloat(*cl),
			Volume: vol,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	// One bar per session; a repeated session keeps the last bar emitted.
	sessions := bars[:0]
	for _, bar := range bars {
		if n := len(sessions); n > 0 && sessions[n-1].DateKey() == bar.DateKey() {
			sessions[n-1] = bar
			continue
		}
		sessions = append(sessions, bar)
	}
	return sessions
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}
