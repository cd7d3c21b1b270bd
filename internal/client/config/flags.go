package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-t", "-i", "-l", "-m"}

// parseFlags overlays cfg with command-line flags.
//
//	-a string   backend base URL
//	-d string   token storage file
//	-t int      request timeout (seconds)
//	-i int      online check interval (seconds)
//	-l string   log level
//	-m string   metrics listen address, empty to disable
//
// Only the flags above are considered; anything else in args is ignored.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "backend base url")
	fs.StringVar(&cfg.StoragePath, "d", cfg.StoragePath, "token storage file")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	return nil
}
