// Package config provides configuration loading, merging, and path management
// for the session broker.
//
// # Configuration Loading
//
// Load implements a layered loading strategy that merges configuration from
// multiple sources in priority order (lowest first):
//
//  1. Built-in defaults (Defaults).
//  2. Global config (~/.config/sessionbroker/broker.json or .jsonc).
//  3. Project config (<directory>/.sessionbroker/broker.json or .jsonc).
//  4. A YAML overlay (<directory>/.sessionbroker/broker.overlay.yaml), for
//     operators who prefer YAML for local overrides.
//  5. BROKER_CONFIG file, if set.
//  6. Environment variables.
//
// # Supported Formats
//
// JSON and JSONC (JSON with comments) are supported for the primary config
// files; the overlay step accepts YAML so deployment tooling that already
// speaks YAML doesn't need a JSON translation step.
//
// # Configuration Merging
//
// Later sources win: scalar fields are overwritten, slice fields (like
// envDenyList) are replaced wholesale rather than appended, consistent with
// the core's intent that the final layer's deny-list is authoritative.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/sessionbroker (XDG_DATA_HOME)
//   - Config: ~/.config/sessionbroker (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/sessionbroker (XDG_CACHE_HOME)
//   - State: ~/.local/state/sessionbroker (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - BROKER_PORT - overrides port
//   - BROKER_CONFIG - path to an additional config file, loaded last before
//     the env var overrides below
//   - BROKER_DEFAULT_CLAUDE_BINARY - overrides defaultClaudeBinary
//   - BROKER_ENV_DENY_LIST - comma-separated, overrides envDenyList
package config
