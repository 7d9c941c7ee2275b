// Package config loads application configuration from config.toml and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Print   PrintConfig
	Receipt ReceiptConfig
	Log     LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string
}

// StoreConfig holds record store settings
type StoreConfig struct {
	// Backend selects the record store: "sqlite" or "memory".
	Backend string
	// DBPath is the SQLite database file.
	DBPath string
	// PollInterval is how often the sqlite store checks for external
	// writers. Zero disables polling.
	PollInterval time.Duration
}

// PrintConfig holds print workflow settings
type PrintConfig struct {
	// SettleDelay is the pause between rendering and the print trigger.
	SettleDelay time.Duration
	// CompletionTimeout bounds the wait for the print completion signal.
	CompletionTimeout time.Duration
	// Backend selects the printer: "command" or "file".
	Backend string
	// Command is the spooler invoked by the command backend.
	Command string
	// SpoolDir is where the file backend writes documents.
	SpoolDir string
	// PDF renders receipts as PDF via headless Chrome instead of text.
	PDF bool
}

// ReceiptConfig holds receipt presentation settings
type ReceiptConfig struct {
	RestaurantName string
	CurrencySymbol string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Load reads configuration with the following priority (highest to
// lowest):
//  1. Environment variables with BILLBOARD_ prefix (e.g., BILLBOARD_STORE_DBPATH)
//  2. config.toml
//  3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/billboard")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BILLBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
		Store: StoreConfig{
			Backend:      v.GetString("store.backend"),
			DBPath:       v.GetString("store.dbpath"),
			PollInterval: v.GetDuration("store.poll_interval"),
		},
		Print: PrintConfig{
			SettleDelay:       v.GetDuration("print.settle_delay"),
			CompletionTimeout: v.GetDuration("print.completion_timeout"),
			Backend:           v.GetString("print.backend"),
			Command:           v.GetString("print.command"),
			SpoolDir:          v.GetString("print.spool_dir"),
			PDF:               v.GetBool("print.pdf"),
		},
		Receipt: ReceiptConfig{
			RestaurantName: v.GetString("receipt.restaurant_name"),
			CurrencySymbol: v.GetString("receipt.currency_symbol"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dbpath", "./data/bills.db")
	v.SetDefault("store.poll_interval", 2*time.Second)
	v.SetDefault("print.settle_delay", 200*time.Millisecond)
	v.SetDefault("print.completion_timeout", 30*time.Second)
	v.SetDefault("print.backend", "file")
	v.SetDefault("print.command", "lp")
	v.SetDefault("print.spool_dir", "./data/spool")
	v.SetDefault("print.pdf", false)
	v.SetDefault("receipt.restaurant_name", "Fire & Froast")
	v.SetDefault("receipt.currency_symbol", "₹")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Print.Backend {
	case "command", "file":
	default:
		return fmt.Errorf("unknown print backend %q", c.Print.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.DBPath == "" {
		return fmt.Errorf("store.dbpath is required for the sqlite backend")
	}
	return nil
}
