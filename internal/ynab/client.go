// Package ynab fetches account balances from the YNAB API to build the
// accounts snapshot.
package ynab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Client reads budgets and accounts with a personal access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout means no timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type budgetResponse struct {
	Data struct {
		Budget struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			CurrencyFormat *struct {
				ISOCode        string `json:"iso_code"`
				CurrencySymbol string `json:"currency_symbol"`
			} `json:"currency_format"`
		} `json:"budget"`
	} `json:"data"`
}

type accountsResponse struct {
	Data struct {
		Accounts []struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			Type           string `json:"type"`
			Balance        int64  `json:"balance"`
			ClearedBalance int64  `json:"cleared_balance"`
			Deleted        bool   `json:"deleted"`
			Closed         bool   `json:"closed"`
		} `json:"accounts"`
	} `json:"data"`
}

// FetchAccounts returns the accounts of every budget in order. A budget that
// cannot be read is logged and skipped so one bad id does not lose the rest.
func (c *Client) FetchAccounts(ctx context.Context, budgetIDs []string) ([]domain.Account, error) {
	log := logger.FromContext(ctx)

	all := []domain.Account{}
	failed := 0
	for _, budgetID := range budgetIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		accounts, err := c.FetchBudgetAccounts(ctx, budgetID)
		if err != nil {
			log.Warn().Err(err).Str("budget_id", budgetID).Msg("Failed to fetch accounts for budget, skipping")
			failed++
			continue
		}
		all = append(all, accounts...)
	}

	log.Info().
		Int("budget_count", len(budgetIDs)).
		Int("failed_budgets", failed).
		Int("account_count", len(all)).
		Msg("Fetched YNAB accounts")
	return all, nil
}

// FetchBudgetAccounts returns one budget's accounts with balances converted
// from milliunits.
func (c *Client) FetchBudgetAccounts(ctx context.Context, budgetID string) ([]domain.Account, error) {
	var budget budgetResponse
	if err := c.get(ctx, "/budgets/"+url.PathEscape(budgetID), &budget); err != nil {
		return nil, err
	}
	var resp accountsResponse
	if err := c.get(ctx, "/budgets/"+url.PathEscape(budgetID)+"/accounts", &resp); err != nil {
		return nil, err
	}

	symbol := ""
	if cf := budget.Data.Budget.CurrencyFormat; cf != nil {
		symbol = cf.CurrencySymbol
	}

	accounts := make([]domain.Account, 0, len(resp.Data.Accounts))
	for _, a := range resp.Data.Accounts {
		accounts = append(accounts, domain.Account{
			ID:             a.ID,
			BudgetID:       budgetID,
			BudgetName:     budget.Data.Budget.Name,
			CurrencySymbol: symbol,
			Name:           a.Name,
			Type:           a.Type,
			Balance:        domain.FromMilliunits(a.Balance),
			ClearedBalance: domain.FromMilliunits(a.ClearedBalance),
			Deleted:        a.Deleted,
			Closed:         a.Closed,
		})
	}
	return accounts, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return syncerr.API("YNAB "+path, "", 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.API("YNAB "+path, "", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncerr.API("YNAB "+path, "", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return syncerr.API("YNAB "+path, "", resp.StatusCode, fmt.Errorf("unexpected response: %s", truncate(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return syncerr.API("YNAB "+path, "", resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func truncate(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
