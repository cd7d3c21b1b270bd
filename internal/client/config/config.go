package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for the freight console.
//
// StoragePassphrase is never taken from flags so it does not show up in the
// process list; an empty value stores tokens unencrypted.
type Config struct {
	ServerBaseURL       string
	StoragePath         string
	StoragePassphrase   string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
	LogLevel            string
	MetricsAddr         string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.StoragePath = "freightdesk.db"
	c.StoragePassphrase = ""
	c.RequestTimeout = 15 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.LogLevel = "info"
	c.MetricsAddr = ""
}

// Validate reports settings the console cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerBaseURL == "" {
		errs = append(errs, errors.New("server base url is required"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("storage path is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("online check interval must be positive, got %s", c.OnlineCheckInterval))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config, then command-line flags. Later sources take precedence.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
