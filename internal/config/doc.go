// Package config handles configuration loading for loomd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from LOOM_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/loom/loomd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${LOOM_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	scheduler:
//	  default_interval: "30m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"  # Webhook ingress
//	  webhook_base: "/hooks"     # Path prefix for registered webhooks
//
// Database:
//
//	database:
//	  path: "/var/lib/loom/loom.db"
//
// Scheduler:
//
//	scheduler:
//	  enabled: true
//	  default_interval: "1h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a specific path:
//
//	cfg, err := config.Load("/etc/loom/loomd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or start from defaults when no file exists:
//
//	cfg := config.Default()
package config
