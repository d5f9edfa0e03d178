// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Defaults for optional settings.
const (
	DefaultKuberaBaseURL   = "https://api.kubera.com"
	DefaultYNABBaseURL     = "https://api.ynab.com/v1"
	DefaultDelay           = 2500 * time.Millisecond
	DefaultTimeout         = 30 * time.Second
	DefaultSnapshotPath    = "ynab_accounts.json"
	DefaultMappingPath     = "account_mapping.json"
	DefaultGroupsPath      = "budget_groups.yaml"
	DefaultSyncInterval    = 6 * time.Hour
	DefaultAuditDataset    = "kubera_sync"
	DefaultLogLevel        = "info"
	DefaultWorkerQueueSize = 10
)

// Kubera holds credentials and transport settings for the Kubera API.
type Kubera struct {
	APIKey      string
	APISecret   string
	PortfolioID string
	BaseURL     string
	// Delay is the pause after every item write.
	Delay   time.Duration
	Timeout time.Duration
	// MaxRequestsPerMinute caps all Kubera calls; 0 disables the cap.
	MaxRequestsPerMinute int
}

// YNAB holds settings for fetching account snapshots.
type YNAB struct {
	Token     string
	BudgetIDs []string
	BaseURL   string
	Timeout   time.Duration
}

// Audit configures the optional BigQuery run history.
type Audit struct {
	ProjectID string
	Dataset   string
}

// Enabled reports whether runs should be recorded.
func (a Audit) Enabled() bool { return a.ProjectID != "" }

// Config is the full process configuration. It is passed explicitly to the
// components that need it; nothing reads the environment after Load.
type Config struct {
	Kubera Kubera
	YNAB   YNAB
	Audit  Audit

	SnapshotPath string
	MappingPath  string
	GroupsPath   string

	DryRun       bool
	SyncInterval time.Duration
	APIToken     string
	LogLevel     string
}

// Load reads an optional .env file (missing files are ignored) and then the
// process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, syncerr.Config("Load", "reading %s: %v", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Kubera: Kubera{
			APIKey:      strings.TrimSpace(getenv("KUBERA_API_KEY")),
			APISecret:   strings.TrimSpace(getenv("KUBERA_API_SECRET")),
			PortfolioID: strings.TrimSpace(getenv("KUBERA_PORTFOLIO_ID")),
			BaseURL:     withDefault(getenv("KUBERA_BASE_URL"), DefaultKuberaBaseURL),
		},
		YNAB: YNAB{
			Token:     strings.TrimSpace(getenv("YNAB_TOKEN")),
			BudgetIDs: splitList(getenv("YNAB_BUDGET_IDS")),
			BaseURL:   withDefault(getenv("YNAB_BASE_URL"), DefaultYNABBaseURL),
		},
		Audit: Audit{
			ProjectID: strings.TrimSpace(getenv("AUDIT_PROJECT_ID")),
			Dataset:   withDefault(getenv("AUDIT_DATASET"), DefaultAuditDataset),
		},
		SnapshotPath: withDefault(getenv("YNAB_JSON_FILE"), DefaultSnapshotPath),
		MappingPath:  withDefault(getenv("ACCOUNT_MAPPING_FILE"), DefaultMappingPath),
		GroupsPath:   withDefault(getenv("BUDGET_GROUPS_FILE"), DefaultGroupsPath),
		APIToken:     strings.TrimSpace(getenv("SYNC_API_TOKEN")),
		LogLevel:     withDefault(getenv("LOG_LEVEL"), DefaultLogLevel),
	}

	var err error
	if cfg.Kubera.Delay, err = durationMillis(getenv, "KUBERA_DELAY_MS", DefaultDelay); err != nil {
		return nil, err
	}
	if cfg.Kubera.Timeout, err = duration(getenv, "KUBERA_TIMEOUT", DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.YNAB.Timeout, err = duration(getenv, "YNAB_TIMEOUT", DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = duration(getenv, "SYNC_INTERVAL", DefaultSyncInterval); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(getenv("KUBERA_MAX_RPM")); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return nil, syncerr.Config("FromEnv", "KUBERA_MAX_RPM must be a non-negative integer, got %q", v)
		}
		cfg.Kubera.MaxRequestsPerMinute = n
	}
	if v := strings.TrimSpace(getenv("SYNC_DRY_RUN")); v != "" {
		b, convErr := strconv.ParseBool(v)
		if convErr != nil {
			return nil, syncerr.Config("FromEnv", "SYNC_DRY_RUN must be a boolean, got %q", v)
		}
		cfg.DryRun = b
	}

	return cfg, nil
}

// Validate checks the settings a reconciliation run needs before any network
// call is made.
func (c *Config) Validate() error {
	var missing []string
	if c.Kubera.APIKey == "" {
		missing = append(missing, "KUBERA_API_KEY")
	}
	if c.Kubera.APISecret == "" {
		missing = append(missing, "KUBERA_API_SECRET")
	}
	if c.Kubera.PortfolioID == "" {
		missing = append(missing, "KUBERA_PORTFOLIO_ID")
	}
	if len(missing) > 0 {
		return syncerr.Config("Validate", "missing %s", strings.Join(missing, ", "))
	}
	if c.Kubera.Delay < 0 {
		return syncerr.Config("Validate", "KUBERA_DELAY_MS must not be negative")
	}
	if c.Kubera.Timeout <= 0 {
		return syncerr.Config("Validate", "KUBERA_TIMEOUT must be positive")
	}
	return nil
}

// ValidateFetch checks the settings needed to fetch a YNAB snapshot.
func (c *Config) ValidateFetch() error {
	var missing []string
	if c.YNAB.Token == "" {
		missing = append(missing, "YNAB_TOKEN")
	}
	if len(c.YNAB.BudgetIDs) == 0 {
		missing = append(missing, "YNAB_BUDGET_IDS")
	}
	if len(missing) > 0 {
		return syncerr.Config("ValidateFetch", "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func withDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationMillis(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, syncerr.Config("FromEnv", "%s must be an integer number of milliseconds, got %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, syncerr.Config("FromEnv", "%s: invalid duration %q", key, v)
	}
	return d, nil
}
