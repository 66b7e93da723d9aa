package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings is the process-level application configuration: where to bind,
// which venue endpoints to dial, and the market-data cache tuning knobs.
// Unlike the three operator JSON files, this is ordinary app config with
// case-insensitive keys, loaded through viper with env overrides.
type Settings struct {
	BindAddr string `mapstructure:"bind_addr"`
	LogsDir  string `mapstructure:"logs_dir"`

	Venue struct {
		Name        string `mapstructure:"name"`
		RestBaseURL string `mapstructure:"rest_base_url"`
		WsURL       string `mapstructure:"ws_url"`
	} `mapstructure:"venue"`

	MarketData struct {
		AtmIvTTLSeconds          int     `mapstructure:"atm_iv_ttl_seconds"`
		AtmIvFallback            float64 `mapstructure:"atm_iv_fallback"`
		LadderMaxAgeSeconds      int     `mapstructure:"ladder_max_age_seconds"`
		LadderSnapshotAgeSeconds int     `mapstructure:"ladder_snapshot_age_seconds"`
		LadderPriceBufferPct     float64 `mapstructure:"ladder_price_buffer_pct"`
	} `mapstructure:"market_data"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// LoadSettings reads the optional settings file at path with env overrides
// (COLLAR_ prefix, dots replaced by underscores). A missing file is not an
// error: every field has a default so the engine can start from env alone.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COLLAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("bind_addr", "0.0.0.0:4100")
	v.SetDefault("logs_dir", "logs")
	v.SetDefault("venue.name", "deribit")
	v.SetDefault("market_data.atm_iv_ttl_seconds", 15)
	v.SetDefault("market_data.atm_iv_fallback", 0.6)
	v.SetDefault("market_data.ladder_max_age_seconds", 5)
	v.SetDefault("market_data.ladder_snapshot_age_seconds", 30)
	v.SetDefault("market_data.ladder_price_buffer_pct", 0.02)
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, errors.Wrapf(err, "read settings %s", path)
		}
		// No settings file: defaults plus env are enough.
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrapf(err, "unmarshal settings %s", path)
	}
	return &s, nil
}
