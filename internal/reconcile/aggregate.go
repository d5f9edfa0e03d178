package reconcile

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

// GroupedAccountName is the account part of a group update's label.
const GroupedAccountName = "Total (Grouped)"

// AggregateGroup sums the live, mapped accounts of budgetID into a single
// update for the group's Kubera item. It reports false when budgetID has no
// group or no qualifying members, in which case nothing should be sent.
//
// Currency and budget name come from the first qualifying member. Members with
// a different currency are still summed; the mismatch is logged.
func AggregateGroup(ctx context.Context, budgetID string, accounts []domain.Account, table domain.MappingTable, groups domain.GroupDefinitions) (domain.PendingUpdate, bool) {
	log := logger.FromContext(ctx)

	group, ok := groups.Lookup(budgetID)
	if !ok {
		return domain.PendingUpdate{}, false
	}

	var (
		first      *domain.MappingEntry
		members    int
		currencies []string
	)
	total := decimal.Zero
	for _, a := range accounts {
		if a.BudgetID != budgetID || !a.Live() {
			continue
		}
		entry, ok := Resolve(a, table)
		if !ok {
			continue
		}
		if first == nil {
			first = &entry
		}
		cur := strings.ToUpper(entry.CurrencyOrDefault())
		if !slices.Contains(currencies, cur) {
			currencies = append(currencies, cur)
		}
		total = total.Add(a.Balance)
		members++
	}

	if first == nil {
		log.Debug().Str("budget_id", budgetID).Msg("Group has no live mapped accounts, nothing to send")
		return domain.PendingUpdate{}, false
	}
	if len(currencies) > 1 {
		log.Warn().
			Str("budget_id", budgetID).
			Strs("currencies", currencies).
			Str("using", first.CurrencyOrDefault()).
			Msg("Group members use different currencies, summing as the first member's currency")
	}

	log.Debug().
		Str("budget_id", budgetID).
		Int("member_count", members).
		Str("total", total.String()).
		Msg("Aggregated group")

	return domain.PendingUpdate{
		TargetItemID: group.TargetItemID,
		NewValue:     total,
		Currency:     first.CurrencyOrDefault(),
		Label:        first.BudgetName + " → " + GroupedAccountName,
		Grouped:      true,
		BudgetID:     budgetID,
	}, true
}

