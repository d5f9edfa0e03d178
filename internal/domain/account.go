package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Account is one YNAB account as captured in the accounts snapshot.
// Balances are in currency units (YNAB milliunits divided by 1000).
type Account struct {
	ID             string          `json:"id"`
	BudgetID       string          `json:"budget_id"`
	BudgetName     string          `json:"budget_name"`
	CurrencySymbol string          `json:"currency_symbol,omitempty"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	ClearedBalance decimal.Decimal `json:"cleared_balance"`
	Deleted        bool            `json:"deleted"`
	Closed         bool            `json:"closed"`
}

// Live reports whether the account counts towards a group total.
func (a Account) Live() bool {
	return !a.Deleted && !a.Closed
}

// MarshalJSON writes balances as JSON numbers so snapshots stay readable by
// tools that expect plain numeric balances.
func (a Account) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID             string      `json:"id"`
		BudgetID       string      `json:"budget_id"`
		BudgetName     string      `json:"budget_name"`
		CurrencySymbol string      `json:"currency_symbol,omitempty"`
		Name           string      `json:"name"`
		Type           string      `json:"type"`
		Balance        json.Number `json:"balance"`
		ClearedBalance json.Number `json:"cleared_balance"`
		Deleted        bool        `json:"deleted"`
		Closed         bool        `json:"closed"`
	}
	return json.Marshal(wire{
		ID:             a.ID,
		BudgetID:       a.BudgetID,
		BudgetName:     a.BudgetName,
		CurrencySymbol: a.CurrencySymbol,
		Name:           a.Name,
		Type:           a.Type,
		Balance:        json.Number(a.Balance.String()),
		ClearedBalance: json.Number(a.ClearedBalance.String()),
		Deleted:        a.Deleted,
		Closed:         a.Closed,
	})
}

// FromMilliunits converts a YNAB milliunit amount to currency units without rounding.
func FromMilliunits(milli int64) decimal.Decimal {
	return decimal.New(milli, -3)
}
