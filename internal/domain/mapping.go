package domain

import (
	"strings"
)

// DefaultCurrency applies to mapping entries that do not name a currency.
const DefaultCurrency = "USD"

// MappingEntry links one YNAB account to a Kubera item.
// An empty TargetItemID means the account is not synced.
type MappingEntry struct {
	BudgetName        string `json:"budget_name"`
	SourceAccountName string `json:"ynab_account_name"`
	TargetItemID      string `json:"kubera_account_id"`
	Currency          string `json:"currency,omitempty"`
}

// CurrencyOrDefault returns the entry's currency, falling back to DefaultCurrency.
func (e MappingEntry) CurrencyOrDefault() string {
	if c := strings.TrimSpace(e.Currency); c != "" {
		return c
	}
	return DefaultCurrency
}

// MappingTable is keyed by YNAB account id.
type MappingTable map[string]MappingEntry

// MappedItemCount returns the number of distinct, non-blank Kubera item ids.
func (t MappingTable) MappedItemCount() int {
	ids := make(map[string]struct{})
	for _, e := range t {
		if id := strings.TrimSpace(e.TargetItemID); id != "" {
			ids[id] = struct{}{}
		}
	}
	return len(ids)
}

// GroupDefinition declares that every account in a budget rolls up into a
// single Kubera item.
type GroupDefinition struct {
	BudgetID     string `yaml:"budget_id" json:"budget_id"`
	TargetItemID string `yaml:"kubera_item_id" json:"kubera_item_id"`
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
}

// GroupDefinitions is keyed by YNAB budget id.
type GroupDefinitions map[string]GroupDefinition

// Lookup returns the group declared for budgetID, if any.
func (g GroupDefinitions) Lookup(budgetID string) (GroupDefinition, bool) {
	def, ok := g[budgetID]
	return def, ok
}
