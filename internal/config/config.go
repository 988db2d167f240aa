package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds engine configuration loaded from flags, env, or config file.
type Config struct {
	Store          string
	PgDSN          string
	FeeRateBps     int64
	AuditOut       string
	Settlement     string
	EthRPC         string
	EthKey         string
	SettlementAddr string
	MaxRetries     int
	RetryBackoff   time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", "postgres")
	v.SetDefault("fee-bps", int64(30))
	v.SetDefault("settlement", "noop")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Store:          v.GetString("store"),
		PgDSN:          v.GetString("pg-dsn"),
		FeeRateBps:     v.GetInt64("fee-bps"),
		AuditOut:       v.GetString("audit-out"),
		Settlement:     v.GetString("settlement"),
		EthRPC:         v.GetString("eth-rpc"),
		EthKey:         v.GetString("eth-key"),
		SettlementAddr: v.GetString("settlement-addr"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		LogLevel:       v.GetString("log-level"),
	}

	switch cfg.Store {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	switch cfg.Settlement {
	case "noop", "evm":
	default:
		return Config{}, fmt.Errorf("unknown settlement mode %q", cfg.Settlement)
	}

	return cfg, nil
}
