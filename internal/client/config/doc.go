// Package config loads runtime configuration for the freight console.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   backend base URL
//	-d string   token storage file
//	-t int      request timeout (seconds)
//	-i int      online status check interval (seconds)
//	-l string   log level
//	-m string   metrics listen address
//
// # JSON schema
//
//	{
//	  "server_base_url": "https://freight.example.com/api",
//	  "storage_path": "/var/lib/freightdesk/console.db",
//	  "storage_passphrase": "correct horse",
//	  "request_timeout": "15s",
//	  "online_check_interval": "3s",
//	  "log_level": "debug",
//	  "metrics_addr": "127.0.0.1:9464"
//	}
//
// The storage passphrase can only be set from the JSON file.
package config
