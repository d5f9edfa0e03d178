package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Kubera.BaseURL != DefaultKuberaBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Kubera.BaseURL, DefaultKuberaBaseURL)
	}
	if cfg.Kubera.Delay != 2500*time.Millisecond {
		t.Errorf("Delay = %v, want 2.5s", cfg.Kubera.Delay)
	}
	if cfg.SnapshotPath != "ynab_accounts.json" {
		t.Errorf("SnapshotPath = %q", cfg.SnapshotPath)
	}
	if cfg.Audit.Enabled() {
		t.Error("audit should be disabled without AUDIT_PROJECT_ID")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"KUBERA_API_KEY":      " key ",
		"KUBERA_API_SECRET":   "secret",
		"KUBERA_PORTFOLIO_ID": "p-1",
		"KUBERA_DELAY_MS":     "10",
		"KUBERA_TIMEOUT":      "5s",
		"KUBERA_MAX_RPM":      "30",
		"YNAB_BUDGET_IDS":     "b1, b2,,b3 ",
		"YNAB_JSON_FILE":      "gs://bucket/accounts.json",
		"SYNC_DRY_RUN":        "true",
		"AUDIT_PROJECT_ID":    "proj",
	}))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Kubera.APIKey != "key" {
		t.Errorf("APIKey = %q, want trimmed", cfg.Kubera.APIKey)
	}
	if cfg.Kubera.Delay != 10*time.Millisecond {
		t.Errorf("Delay = %v", cfg.Kubera.Delay)
	}
	if cfg.Kubera.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Kubera.Timeout)
	}
	if cfg.Kubera.MaxRequestsPerMinute != 30 {
		t.Errorf("MaxRequestsPerMinute = %d", cfg.Kubera.MaxRequestsPerMinute)
	}
	if strings.Join(cfg.YNAB.BudgetIDs, "|") != "b1|b2|b3" {
		t.Errorf("BudgetIDs = %v", cfg.YNAB.BudgetIDs)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true")
	}
	if !cfg.Audit.Enabled() || cfg.Audit.Dataset != DefaultAuditDataset {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"delay not a number", map[string]string{"KUBERA_DELAY_MS": "2.5s"}},
		{"bad timeout", map[string]string{"KUBERA_TIMEOUT": "soon"}},
		{"negative rpm", map[string]string{"KUBERA_MAX_RPM": "-1"}},
		{"bad dry run", map[string]string{"SYNC_DRY_RUN": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			if !errors.Is(err, syncerr.ErrConfig) {
				t.Errorf("FromEnv() error = %v, want config error", err)
			}
		})
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg, _ := FromEnv(envMap(map[string]string{"KUBERA_API_KEY": "key"}))

	err := cfg.Validate()
	if !errors.Is(err, syncerr.ErrConfig) {
		t.Fatalf("Validate() error = %v, want config error", err)
	}
	if !strings.Contains(err.Error(), "KUBERA_API_SECRET") || !strings.Contains(err.Error(), "KUBERA_PORTFOLIO_ID") {
		t.Errorf("error should name missing settings, got: %v", err)
	}
}

func TestValidateFetch(t *testing.T) {
	cfg, _ := FromEnv(envMap(map[string]string{"YNAB_TOKEN": "tok"}))
	if err := cfg.ValidateFetch(); !errors.Is(err, syncerr.ErrConfig) {
		t.Errorf("ValidateFetch() error = %v, want config error", err)
	}

	cfg.YNAB.BudgetIDs = []string{"b1"}
	if err := cfg.ValidateFetch(); err != nil {
		t.Errorf("ValidateFetch() = %v, want nil", err)
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("KUBERA_PORTFOLIO_ID=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KUBERA_PORTFOLIO_ID", "")
	os.Unsetenv("KUBERA_PORTFOLIO_ID")

	cfg, err := Load(envFile, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Kubera.PortfolioID != "from-dotenv" {
		t.Errorf("PortfolioID = %q, want from-dotenv", cfg.Kubera.PortfolioID)
	}
}
