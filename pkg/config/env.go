package config

import (
	"github.com/codingconcepts/env"
)

// Env holds the process-level environment variables. Struct tags follow the
// codingconcepts/env convention (env + default tags decoded by env.Set).
type Env struct {
	LoopIntervalMs    int    `env:"LOOP_INTERVAL_MS" default:"15000"`
	MtmIntervalMs     int    `env:"MTM_INTERVAL_MS" default:"60000"`
	AppMode           string `env:"APP_MODE" default:"production"`
	FoxifyApproved    bool   `env:"FOXIFY_APPROVED" default:"false"`
	AuditSeed         string `env:"AUDIT_SEED"`
	AccountsConfigPath string `env:"ACCOUNTS_CONFIG_PATH" default:"live_accounts.json"`
	QuoteCacheTtlMs   int    `env:"QUOTE_CACHE_TTL_MS" default:"4000"`
	QuoteCacheStaleMs int    `env:"QUOTE_CACHE_STALE_MS" default:"20000"`
	QuoteCacheHardMs  int    `env:"QUOTE_CACHE_HARD_MS" default:"120000"`
	DeribitEnv        string `env:"DERIBIT_ENV" default:"testnet"`
	DeribitPaper      bool   `env:"DERIBIT_PAPER" default:"true"`
	DeribitClientID   string `env:"DERIBIT_CLIENT_ID"`
	DeribitSecret     string `env:"DERIBIT_CLIENT_SECRET"`
}

// LoadEnv parses process environment variables into an Env value.
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Set(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
