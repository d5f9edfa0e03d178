package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// NeedsUpdate reports whether Kubera's value differs from the pending value.
// Comparison is exact: any difference, however small, needs an update.
func NeedsUpdate(pending, current decimal.Decimal) bool {
	return !pending.Equal(current)
}

// LookupItem finds the portfolio item with the given id.
func LookupItem(items []domain.PortfolioItem, id string) (domain.PortfolioItem, error) {
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.PortfolioItem{}, syncerr.Lookup("LookupItem", id)
}
