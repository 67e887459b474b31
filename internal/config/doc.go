// Package config handles configuration loading for evobolt.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	evolution:
//	  api_key: "${EVOLUTION_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	pairing:
//	  poll_interval: "3s"
//	  settle_delay: "2s"
//	  ceiling: "5m"
//
// # Configuration Sections
//
// Server and remote endpoint:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	evolution:
//	  base_url: "https://evo.example.com"
//	  api_key: "${EVOLUTION_API_KEY}"
//	  request_timeout: "30s"
//
// Persistence and auth:
//
//	database:
//	  path: "/var/lib/evobolt/evobolt.db"
//
//	auth:
//	  jwt_secret: "${EVOBOLT_JWT_SECRET}"
//	  demo_password: "123456"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "evobolt"
//	  auth_key: "${TS_AUTHKEY}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
