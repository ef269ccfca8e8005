package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/transfa/market-service/internal/domain"
)

var errCrumbRejected = errors.New("marketdata: crumb rejected")

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile *struct {
				Industry string `json:"industry"`
				Sector   string `json:"sector"`
				Website  string `json:"website"`
			} `json:"assetProfile"`
			Price *struct {
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
				MarketCap struct {
					Raw *float64 `json:"raw"`
				} `json:"marketCap"`
			} `json:"price"`
		} `json:"result"`
		Error *providerError `json:"error"`
	} `json:"quoteSummary"`
}

// CompanyProfile returns name, industry, sector, market cap and website for
// symbol. Fields the provider does not report are left nil.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (*domain.CompanyInfo, error) {
	info, err := c.companyProfile(ctx, symbol, false)
	if errors.Is(err, errCrumbRejected) {
		info, err = c.companyProfile(ctx, symbol, true)
	}
	if errors.Is(err, errCrumbRejected) {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Description: "crumb rejected after refresh"}
	}
	return info, err
}

func (c *Client) companyProfile(ctx context.Context, symbol string, refresh bool) (*domain.CompanyInfo, error) {
	crumb, err := c.sessionCrumb(ctx, refresh)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("modules", "assetProfile,price")
	q.Set("crumb", crumb)
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, errCrumbRejected
	}

	var summary quoteSummaryResponse
	if err := decode(resp, &summary, func() *providerError { return summary.QuoteSummary.Error }); err != nil {
		return nil, err
	}
	if len(summary.QuoteSummary.Result) == 0 {
		return nil, ErrSymbolNotFound
	}

	result := summary.QuoteSummary.Result[0]
	info := &domain.CompanyInfo{Symbol: symbol}
	if p := result.Price; p != nil {
		name := p.LongName
		if name == "" {
			name = p.ShortName
		}
		info.Name = optional(name)
		if p.MarketCap.Raw != nil {
			mc := int64(*p.MarketCap.Raw)
			info.MarketCap = &mc
		}
	}
	if a := result.AssetProfile; a != nil {
		info.Industry = optional(a.Industry)
		info.Sector = optional(a.Sector)
		info.Website = optional(a.Website)
	}
	return info, nil
}

// sessionCrumb returns the cached crumb, performing the cookie and crumb
// handshake when none is cached or refresh is set.
func (c *Client) sessionCrumb(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.crumb != "" && !refresh {
		return c.crumb, nil
	}
	c.crumb = ""

	// The cookie endpoint answers with an error status but still sets the
	// session cookie in the jar; only transport errors matter here.
	resp, err := c.get(ctx, c.cookieURL)
	if err != nil {
		return "", fmt.Errorf("marketdata cookie handshake: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = c.get(ctx, c.baseURL+"/v1/test/getcrumb")
	if err != nil {
		return "", fmt.Errorf("marketdata crumb: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	if err != nil {
		return "", fmt.Errorf("marketdata crumb read: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK || crumb == "" || strings.ContainsAny(crumb, "{<") {
		return "", &APIError{StatusCode: resp.StatusCode, Description: "crumb unavailable"}
	}

	c.crumb = crumb
	return crumb, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
