// Package kubera talks to the Kubera data API: it reads a portfolio's assets
// and writes new item values, signing every request.
package kubera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/signer"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	// MaxRequestsPerMinute caps outgoing requests; 0 means no cap.
	MaxRequestsPerMinute int
	// Now supplies request timestamps. Defaults to time.Now.
	Now func() time.Time
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client is a signed Kubera API client.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	now        func() time.Time
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
		now:        opts.Now,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxRequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MaxRequestsPerMinute)), 1)
	}
	return c
}

type portfolioResponse struct {
	Data struct {
		Asset []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Value struct {
				Amount   decimal.NullDecimal `json:"amount"`
				Currency string              `json:"currency"`
			} `json:"value"`
		} `json:"asset"`
	} `json:"data"`
}

// FetchPortfolio returns the assets of a portfolio with their current values.
// Assets without an amount are reported with a zero value.
func (c *Client) FetchPortfolio(ctx context.Context, portfolioID string) ([]domain.PortfolioItem, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(portfolioID) == "" {
		return nil, syncerr.Config("FetchPortfolio", "portfolio id is empty")
	}
	path := "/api/v3/data/portfolio/" + url.PathEscape(portfolioID)

	body, err := c.do(ctx, "FetchPortfolio", "", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp portfolioResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, syncerr.API("FetchPortfolio", "", http.StatusOK, fmt.Errorf("decoding portfolio: %w", err))
	}

	items := make([]domain.PortfolioItem, 0, len(resp.Data.Asset))
	for _, a := range resp.Data.Asset {
		items = append(items, domain.PortfolioItem{
			ID:       a.ID,
			Name:     a.Name,
			Value:    a.Value.Amount.Decimal,
			Currency: a.Value.Currency,
		})
	}

	log.Info().
		Str("portfolio_id", portfolioID).
		Int("asset_count", len(items)).
		Msg("Loaded Kubera portfolio")
	return items, nil
}

type updateRequest struct {
	Value json.Number `json:"value"`
}

// UpdateItem sets an item's value. The value is sent as a JSON number and the
// exact bytes sent are the bytes signed.
func (c *Client) UpdateItem(ctx context.Context, itemID string, value decimal.Decimal) error {
	if strings.TrimSpace(itemID) == "" {
		return syncerr.Config("UpdateItem", "item id is empty")
	}
	payload, err := json.Marshal(updateRequest{Value: json.Number(value.String())})
	if err != nil {
		return syncerr.API("UpdateItem", itemID, 0, fmt.Errorf("encoding body: %w", err))
	}

	path := "/api/v3/data/item/" + url.PathEscape(itemID)
	_, err = c.do(ctx, "UpdateItem", itemID, http.MethodPost, path, payload)
	return err
}

func (c *Client) do(ctx context.Context, op, itemID, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, syncerr.API(op, itemID, 0, err)
	}

	timestamp := c.now().Unix()
	signature, err := signer.Sign(c.apiKey, c.apiSecret, timestamp, method, path, payload)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, syncerr.API(op, itemID, 0, err)
	}
	req.Header.Set("x-api-token", c.apiKey)
	req.Header.Set("x-timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("x-signature", signature)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncerr.API(op, itemID, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncerr.API(op, itemID, resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, syncerr.API(op, itemID, resp.StatusCode, fmt.Errorf("unexpected response: %s", truncate(body)))
	}
	return body, nil
}

func truncate(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
