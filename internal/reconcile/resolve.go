package reconcile

import (
	"strings"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
)

// Resolve returns the mapping entry for account when it names a Kubera item.
// Accounts without an entry, or whose entry has a blank item id, do not take
// part in the sync. The returned entry has its item id trimmed.
func Resolve(account domain.Account, table domain.MappingTable) (domain.MappingEntry, bool) {
	entry, ok := table[account.ID]
	if !ok {
		return domain.MappingEntry{}, false
	}
	entry.TargetItemID = strings.TrimSpace(entry.TargetItemID)
	if entry.TargetItemID == "" {
		return domain.MappingEntry{}, false
	}
	return entry, true
}

// DirectUpdate builds the update for an ungrouped account.
func DirectUpdate(account domain.Account, entry domain.MappingEntry) domain.PendingUpdate {
	return domain.PendingUpdate{
		TargetItemID: entry.TargetItemID,
		NewValue:     account.Balance,
		Currency:     entry.CurrencyOrDefault(),
		Label:        entry.BudgetName + " → " + entry.SourceAccountName,
		BudgetID:     account.BudgetID,
	}
}
