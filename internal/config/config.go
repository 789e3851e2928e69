package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the anchoring relayer.
type Config struct {
	AppName        string
	AppEnv         string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	AnchorSubject  string
	PushgatewayURL string
	LedgerRPCURL   string
	LedgerWIF      string
	LedgerContract string
	ConfirmTimeout time.Duration
	PassLockTTL    time.Duration
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Anchor Relayer")
	v.SetDefault("app.env", "development")
	v.SetDefault("anchor.subject", "gema.anchor.session")
	v.SetDefault("ledger.confirm_timeout", "3m")
	v.SetDefault("pass.lock_ttl", "10m")

	confirmTimeout, err := time.ParseDuration(v.GetString("ledger.confirm_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ledger confirm timeout: %w", err)
	}

	lockTTL, err := time.ParseDuration(v.GetString("pass.lock_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid pass lock ttl: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		AnchorSubject:  v.GetString("anchor.subject"),
		PushgatewayURL: v.GetString("pushgateway.url"),
		LedgerRPCURL:   v.GetString("ledger.rpc_url"),
		LedgerWIF:      v.GetString("ledger.wif"),
		LedgerContract: v.GetString("ledger.contract"),
		ConfirmTimeout: confirmTimeout,
		PassLockTTL:    lockTTL,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.LedgerRPCURL == "" || cfg.LedgerWIF == "" || cfg.LedgerContract == "" {
		return Config{}, fmt.Errorf("ledger rpc url, signing key and contract address must be provided")
	}

	return cfg, nil
}
