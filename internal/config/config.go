package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Wallet WalletConfig
	Redis  RedisConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type WalletConfig struct {
	PayToAddress      string            `mapstructure:"pay_to_address"`
	InvoiceTTLSeconds int               `mapstructure:"invoice_ttl_seconds"`
	RoutePrices       map[string]string `mapstructure:"route_prices"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// InvoiceTTL returns the invoice validity window as a duration.
func (c *Config) InvoiceTTL() time.Duration {
	return time.Duration(c.Wallet.InvoiceTTLSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("wallet.invoice_ttl_seconds", 300)
	v.SetDefault("wallet.route_prices", map[string]string{
		"/validate/csv":    "0.01",
		"/clean/dataframe": "0.05",
		"/extract/pdf":     "0.05",
		"/summarize/logs":  "0.02",
	})

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"wallet.pay_to_address":      "PAY_TO_ADDRESS",
		"wallet.invoice_ttl_seconds": "INVOICE_TTL_SECONDS",
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"server.port":                "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Wallet.PayToAddress == "" {
		return fmt.Errorf("required config missing: PAY_TO_ADDRESS")
	}
	if c.Wallet.InvoiceTTLSeconds <= 0 {
		return fmt.Errorf("INVOICE_TTL_SECONDS must be positive, got %d", c.Wallet.InvoiceTTLSeconds)
	}
	if len(c.Wallet.RoutePrices) == 0 {
		return fmt.Errorf("route price table is empty")
	}
	for path, price := range c.Wallet.RoutePrices {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("invalid price %q for path %s: %w", price, path, err)
		}
		if !d.IsPositive() {
			return fmt.Errorf("price for path %s must be positive, got %s", path, price)
		}
	}
	return nil
}
