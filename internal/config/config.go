package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ZarinPalConfig struct {
	MerchantID  string `yaml:"merchant_id"`
	Sandbox     bool   `yaml:"sandbox"`
	AccessToken string `yaml:"access_token"` // refunds only
}

type SepConfig struct {
	TerminalID string `yaml:"terminal_id"`
	Sandbox    bool   `yaml:"sandbox"`
}

type PaymentConfig struct {
	CallbackBaseURL  string         `yaml:"callback_base_url"` // e.g. https://shop.example.com
	StateTokenSecret string         `yaml:"state_token_secret"`
	MinAmount        int64          `yaml:"min_amount"` // minor unit (IRR)
	Expiry           time.Duration  `yaml:"expiry"`     // payment window
	DefaultGateway   string         `yaml:"default_gateway"`
	ZarinPal         ZarinPalConfig `yaml:"zarinpal"`
	Sep              SepConfig      `yaml:"sep"`
}

type SweeperConfig struct {
	Interval       time.Duration `yaml:"interval"`        // expiry scan period
	ReconcileAfter time.Duration `yaml:"reconcile_after"` // how stale a redirected payment must be to re-verify
	BatchSize      int           `yaml:"batch_size"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Payment.MinAmount <= 0 {
		cfg.Payment.MinAmount = 10_000 // 1,000 Toman
	}
	if cfg.Payment.Expiry <= 0 {
		cfg.Payment.Expiry = 30 * time.Minute
	}
	if cfg.Payment.DefaultGateway == "" {
		cfg.Payment.DefaultGateway = "zarinpal"
	}
	if cfg.Sweeper.Interval <= 0 {
		cfg.Sweeper.Interval = time.Minute
	}
	if cfg.Sweeper.ReconcileAfter <= 0 {
		cfg.Sweeper.ReconcileAfter = 10 * time.Minute
	}
	if cfg.Sweeper.BatchSize <= 0 {
		cfg.Sweeper.BatchSize = 200
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.CallbackBaseURL == "" {
		return nil, errors.New("payment.callback_base_url is required")
	}
	// An empty secret would make every state token forgeable.
	if cfg.Payment.StateTokenSecret == "" {
		return nil, errors.New("payment.state_token_secret is required")
	}
	if cfg.Payment.ZarinPal.MerchantID == "" && !cfg.Payment.ZarinPal.Sandbox &&
		cfg.Payment.Sep.TerminalID == "" && !cfg.Payment.Sep.Sandbox {
		return nil, errors.New("at least one payment gateway must be configured")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
