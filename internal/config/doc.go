// Package config handles configuration loading for hvac-gateway.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. --config flag
//  2. HVAC_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/hvac-mesh/gateway.yaml
//  4. ~/.config/hvac-mesh/gateway.yaml
//
// Files ending in .toml are decoded as TOML; anything else as YAML. Both use
// the same keys.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${HVAC_JWT_SECRET}"
//
// Unset variables expand to the empty string. The gateway loads a .env file
// from the working directory before expansion.
//
// # Durations
//
// agents.send_timeout, agents.lock_timeout, correlation.sweep_interval and
// relay.seen_ttl use time.ParseDuration syntax ("250ms", "15m").
//
// # Defaults
//
//   - agents.inbox_capacity: 100
//   - agents.send_timeout: 1s
//   - agents.lock_timeout: 250ms
//   - agents.predictor: fixed
//   - agents.delivery: block
//   - agents.mesh: true
//   - metrics.path: /metrics
//
// See Example for a complete document.
package config
