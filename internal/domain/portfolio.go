package domain

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// PortfolioItem is a Kubera asset as returned by the portfolio endpoint.
// Value is the last value Kubera knows for the item.
type PortfolioItem struct {
	ID       string
	Name     string
	Value    decimal.Decimal
	Currency string
}

// PendingUpdate is one Kubera item's intended new value.
type PendingUpdate struct {
	TargetItemID string
	NewValue     decimal.Decimal
	Currency     string
	Label        string
	// Grouped is set for synthetic updates produced from a budget group.
	Grouped  bool
	BudgetID string
}

// KnownCurrency reports whether code is an ISO 4217 currency go-money knows.
func KnownCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(strings.TrimSpace(code))) != nil
}

// FormatAmount renders value for logs, e.g. "$152.30" for USD. Unknown codes
// fall back to "152.30 XYZ".
func FormatAmount(value decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	cur := money.GetCurrency(code)
	if cur == nil {
		return fmt.Sprintf("%s %s", value.StringFixed(2), code)
	}
	minor := value.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
