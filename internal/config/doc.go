// Package config handles configuration loading for rcon-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion, duration parsing, defaults, and
// validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RCON_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/rcon-gateway/gateway.yaml
//  3. ~/.config/rcon-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${RCON_GATEWAY_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  request_timeout: "30s"
//
//	auth:
//	  tokens: ["${RCON_GATEWAY_TOKEN}"]
//	  jwt_secret: "${RCON_GATEWAY_JWT_SECRET}"
//	  dedupe_ttl: "5m"
//
//	database:
//	  path: "/var/lib/rcon-gateway/keys.db"   # stored API keys, optional
//
//	agents:
//	  reconnect_strategy: "fixed"   # fixed, exponential
//	  reconnect_delay: "1s"
//	  reconnect_max_delay: "30s"    # exponential only
//	  max_attempts: 0               # 0 retries forever
//	  dial_timeout: "5s"
//	  write_timeout: "10s"
//	  fail_fast: false
//
//	servers:
//	  - hostname: "eu-1"
//	    name: "EU #1"
//	    ip: "10.0.0.1"
//	    port: 27015
//	    password: "${EU1_RCON_PASSWORD}"
//
//	inventory: "servers.json"       # legacy file, merged into servers/tokens
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Legacy Inventory
//
// LoadInventory reads the older servers.json layout, where ports may be
// quoted and the receiver port is spelled receiverPort.
package config
