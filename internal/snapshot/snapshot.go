// Package snapshot reads and writes the run inputs: the YNAB accounts
// snapshot, the account mapping table and the budget group definitions.
// Paths may be local files or gs:// objects.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/gcs"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Loader loads run inputs from configured paths.
type Loader struct {
	SnapshotPath string
	MappingPath  string
	// GroupsPath is optional; a missing file means no groups.
	GroupsPath string
	// Store serves gs:// paths. It may be nil when every path is local.
	Store gcs.ObjectStore
}

// Load reads and parses all three inputs. Any malformed input is an
// InputParse error.
func (l *Loader) Load(ctx context.Context) (*domain.Inputs, error) {
	log := logger.FromContext(ctx)

	raw, err := l.read(ctx, l.SnapshotPath)
	if err != nil {
		return nil, syncerr.InputParse("LoadSnapshot", err)
	}
	accounts, err := ParseAccounts(raw)
	if err != nil {
		return nil, err
	}

	mapping, err := l.LoadMapping(ctx)
	if err != nil {
		return nil, err
	}

	groups := domain.GroupDefinitions{}
	if l.GroupsPath != "" {
		raw, err = l.read(ctx, l.GroupsPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("path", l.GroupsPath).Msg("No budget groups file, grouping disabled")
		case err != nil:
			return nil, syncerr.InputParse("LoadGroups", err)
		default:
			if groups, err = ParseGroups(raw); err != nil {
				return nil, err
			}
		}
	}

	log.Info().
		Int("account_count", len(accounts)).
		Int("mapping_count", len(mapping)).
		Int("group_count", len(groups)).
		Msg("Loaded reconciliation inputs")

	return &domain.Inputs{Accounts: accounts, Mapping: mapping, Groups: groups}, nil
}

// LoadMapping reads only the mapping table. Entries naming an unknown
// currency code are logged, not rejected.
func (l *Loader) LoadMapping(ctx context.Context) (domain.MappingTable, error) {
	raw, err := l.read(ctx, l.MappingPath)
	if err != nil {
		return nil, syncerr.InputParse("LoadMapping", err)
	}
	mapping, err := ParseMapping(raw)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	for id, entry := range mapping {
		if entry.Currency != "" && !domain.KnownCurrency(entry.Currency) {
			log.Warn().
				Str("account_id", id).
				Str("currency", entry.Currency).
				Msg("Mapping entry uses an unknown currency code")
		}
	}
	return mapping, nil
}

func (l *Loader) read(ctx context.Context, path string) ([]byte, error) {
	if gcs.IsURI(path) {
		if l.Store == nil {
			return nil, fmt.Errorf("no object store configured for %s", path)
		}
		return l.Store.Read(ctx, path)
	}
	return os.ReadFile(path)
}

// ParseAccounts decodes a snapshot: a JSON array of accounts, each with an id
// and budget id.
func ParseAccounts(data []byte) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, syncerr.InputParse("ParseAccounts", err)
	}
	if accounts == nil {
		return nil, syncerr.InputParse("ParseAccounts", errors.New("snapshot is not a JSON array"))
	}
	for i, a := range accounts {
		if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.BudgetID) == "" {
			return nil, syncerr.InputParse("ParseAccounts", fmt.Errorf("account %d is missing id or budget_id", i))
		}
	}
	return accounts, nil
}

// ParseMapping decodes the mapping table: a JSON object keyed by YNAB account id.
func ParseMapping(data []byte) (domain.MappingTable, error) {
	var table domain.MappingTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, syncerr.InputParse("ParseMapping", err)
	}
	if table == nil {
		return nil, syncerr.InputParse("ParseMapping", errors.New("mapping is not a JSON object"))
	}
	return table, nil
}

type groupsFile struct {
	Groups []domain.GroupDefinition `yaml:"groups"`
}

// ParseGroups decodes the YAML group definitions file:
//
//	groups:
//	  - budget_id: 6ae4c733-...
//	    kubera_item_id: f616723a-...
//	    name: Thailand
func ParseGroups(data []byte) (domain.GroupDefinitions, error) {
	var f groupsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, syncerr.InputParse("ParseGroups", err)
	}

	groups := make(domain.GroupDefinitions, len(f.Groups))
	for i, g := range f.Groups {
		g.BudgetID = strings.TrimSpace(g.BudgetID)
		g.TargetItemID = strings.TrimSpace(g.TargetItemID)
		if g.BudgetID == "" || g.TargetItemID == "" {
			return nil, syncerr.InputParse("ParseGroups", fmt.Errorf("group %d needs budget_id and kubera_item_id", i))
		}
		if _, dup := groups[g.BudgetID]; dup {
			return nil, syncerr.InputParse("ParseGroups", fmt.Errorf("budget %s is declared twice", g.BudgetID))
		}
		groups[g.BudgetID] = g
	}
	return groups, nil
}

// Save writes accounts as an indented JSON array to a local path or gs:// URI.
func Save(ctx context.Context, path string, accounts []domain.Account, store gcs.ObjectStore) error {
	if accounts == nil {
		accounts = []domain.Account{}
	}
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("Save: encoding snapshot: %w", err)
	}

	if gcs.IsURI(path) {
		if store == nil {
			return fmt.Errorf("Save: no object store configured for %s", path)
		}
		return store.Write(ctx, path, data, "application/json")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("Save: writing %s: %w", path, err)
	}
	return nil
}
