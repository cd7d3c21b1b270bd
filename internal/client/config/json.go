package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/freightdesk/internal/flagx"
	"github.com/dmitrijs2005/freightdesk/internal/timex"
)

// JSONConfig is the on-disk form of Config. Durations accept "15s" or
// integer nanoseconds.
type JSONConfig struct {
	ServerBaseURL       string         `json:"server_base_url"`
	StoragePath         string         `json:"storage_path"`
	StoragePassphrase   string         `json:"storage_passphrase"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	LogLevel            string         `json:"log_level"`
	MetricsAddr         string         `json:"metrics_addr"`
}

// parseJSON overlays cfg with the fields set in the file named by -c or
// -config. Absent or zero fields keep their current value.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	overlay(&cfg.ServerBaseURL, jc.ServerBaseURL)
	overlay(&cfg.StoragePath, jc.StoragePath)
	overlay(&cfg.StoragePassphrase, jc.StoragePassphrase)
	overlay(&cfg.LogLevel, jc.LogLevel)
	overlay(&cfg.MetricsAddr, jc.MetricsAddr)
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
