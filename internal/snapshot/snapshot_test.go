package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

const accountsJSON = `[
  {"id": "a1", "budget_id": "b1", "budget_name": "Home", "name": "Checking", "type": "checking", "balance": 152.3, "cleared_balance": 150, "deleted": false, "closed": false},
  {"id": "a2", "budget_id": "b2", "budget_name": "Thailand", "name": "Cash", "type": "cash", "balance": 50, "cleared_balance": 50, "deleted": false, "closed": true}
]`

const mappingJSON = `{
  "a1": {"budget_name": "Home", "ynab_account_name": "Checking", "kubera_account_id": "T1", "currency": "USD"},
  "a2": {"budget_name": "Thailand", "ynab_account_name": "Cash", "kubera_account_id": ""}
}`

const groupsYAML = `groups:
  - budget_id: b2
    kubera_item_id: G1
    name: Thailand
`

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) Read(ctx context.Context, uri string) ([]byte, error) {
	data, ok := f.objects[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeStore) Write(ctx context.Context, uri string, data []byte, contentType string) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[uri] = data
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_LoadLocalFiles(t *testing.T) {
	dir := t.TempDir()
	loader := &Loader{
		SnapshotPath: writeFile(t, dir, "accounts.json", accountsJSON),
		MappingPath:  writeFile(t, dir, "mapping.json", mappingJSON),
		GroupsPath:   writeFile(t, dir, "groups.yaml", groupsYAML),
	}

	inputs, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, inputs.Accounts, 2)
	assert.Equal(t, "a1", inputs.Accounts[0].ID)
	assert.True(t, inputs.Accounts[0].Balance.Equal(decimal.RequireFromString("152.3")))
	assert.True(t, inputs.Accounts[1].Closed)
	assert.Equal(t, "T1", inputs.Mapping["a1"].TargetItemID)
	assert.Equal(t, "G1", inputs.Groups["b2"].TargetItemID)
}

func TestLoader_LoadMappingWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	loader := &Loader{
		SnapshotPath: filepath.Join(dir, "missing.json"),
		MappingPath:  writeFile(t, dir, "mapping.json", mappingJSON),
	}

	mapping, err := loader.LoadMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mapping.MappedItemCount())
}

func TestLoader_MissingGroupsFileMeansNoGroups(t *testing.T) {
	dir := t.TempDir()
	loader := &Loader{
		SnapshotPath: writeFile(t, dir, "accounts.json", accountsJSON),
		MappingPath:  writeFile(t, dir, "mapping.json", mappingJSON),
		GroupsPath:   filepath.Join(dir, "absent.yaml"),
	}

	inputs, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inputs.Groups)
}

func TestLoader_MissingSnapshotIsInputParseError(t *testing.T) {
	dir := t.TempDir()
	loader := &Loader{
		SnapshotPath: filepath.Join(dir, "absent.json"),
		MappingPath:  writeFile(t, dir, "mapping.json", mappingJSON),
	}

	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, syncerr.ErrInputParse)
}

func TestLoader_ReadsGCSPaths(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"gs://bucket/accounts.json": []byte(accountsJSON),
		"gs://bucket/mapping.json":  []byte(mappingJSON),
	}}
	loader := &Loader{
		SnapshotPath: "gs://bucket/accounts.json",
		MappingPath:  "gs://bucket/mapping.json",
		Store:        store,
	}

	inputs, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, inputs.Accounts, 2)
}

func TestParseAccounts_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"object instead of array", `{"id": "a1"}`},
		{"null", `null`},
		{"missing budget id", `[{"id": "a1", "balance": 1}]`},
		{"balance not numeric", `[{"id": "a1", "budget_id": "b1", "balance": "lots"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccounts([]byte(tt.data))
			assert.ErrorIs(t, err, syncerr.ErrInputParse)
		})
	}
}

func TestParseMapping_Malformed(t *testing.T) {
	_, err := ParseMapping([]byte(`["a1"]`))
	assert.ErrorIs(t, err, syncerr.ErrInputParse)

	_, err = ParseMapping([]byte(`null`))
	assert.ErrorIs(t, err, syncerr.ErrInputParse)
}

func TestParseGroups(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantLen int
		wantErr bool
	}{
		{"valid", groupsYAML, 1, false},
		{"empty file", ``, 0, false},
		{"missing item id", "groups:\n  - budget_id: b1\n", 0, true},
		{"duplicate budget", "groups:\n  - budget_id: b1\n    kubera_item_id: G1\n  - budget_id: b1\n    kubera_item_id: G2\n", 0, true},
		{"not yaml", "groups: [", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := ParseGroups([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, syncerr.ErrInputParse)
				return
			}
			require.NoError(t, err)
			assert.Len(t, groups, tt.wantLen)
		})
	}
}

func TestSave_LocalAndGCS(t *testing.T) {
	accounts := []domain.Account{{ID: "a1", BudgetID: "b1", Balance: domain.FromMilliunits(152300)}}

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Save(context.Background(), path, accounts, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	back, err := ParseAccounts(data)
	require.NoError(t, err)
	assert.True(t, back[0].Balance.Equal(accounts[0].Balance))
	assert.Contains(t, string(data), `"balance": 152.3`)

	store := &fakeStore{}
	require.NoError(t, Save(context.Background(), "gs://bucket/out.json", accounts, store))
	assert.Contains(t, string(store.objects["gs://bucket/out.json"]), `"id": "a1"`)

	assert.Error(t, Save(context.Background(), "gs://bucket/out.json", accounts, nil))
}
