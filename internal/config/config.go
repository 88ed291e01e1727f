package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sessionbroker/broker/pkg/types"
)

// Defaults returns the built-in configuration baseline, the lowest-priority
// layer Load starts from.
func Defaults() types.Config {
	return types.Config{
		Port: 8787,
		ConsumerMessageRateLimit: types.RateLimitConfig{
			TokensPerSecond: 5,
			BurstSize:       10,
		},
		MaxMessageHistoryLength:  500,
		MaxConcurrentSessions:    50,
		IdleSessionTimeoutMs:     30 * 60 * 1000,
		ReconnectGracePeriodMs:   60 * 1000,
		RelaunchDedupMs:          2000,
		InitializeTimeoutMs:      15 * 1000,
		KillGracePeriodMs:        5000,
		RelaunchGracePeriodMs:    10 * 1000,
		ResumeFailureThresholdMs: 3000,
		EnvDenyList:              []string{"AWS_SECRET_ACCESS_KEY", "ANTHROPIC_API_KEY"},
		CLIWebSocketURLTemplate:  "ws://127.0.0.1:{port}/session",
		DefaultClaudeBinary:      "claude",
		CLIRestartCircuitBreaker: types.CircuitBreakerConfig{
			FailureThreshold: 3,
			WindowMs:         60 * 1000,
			RecoveryTimeMs:   30 * 1000,
			SuccessThreshold: 1,
		},
		SlashCommand: types.SlashCommandConfig{
			PTYEnabled:            true,
			PTYTimeoutMs:          10 * 1000,
			PTYSilenceThresholdMs: 750,
		},
	}
}

// Load loads configuration by layering, in priority order (lowest first):
// built-in defaults, the global config file, the project config file, a
// YAML overlay, BROKER_CONFIG, and environment variables.
func Load(directory string) (*types.Config, error) {
	cfg := Defaults()

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "broker.json"), &cfg)
	loadConfigFile(filepath.Join(globalPath, "broker.jsonc"), &cfg)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".sessionbroker", "broker.json"), &cfg)
		loadConfigFile(filepath.Join(directory, ".sessionbroker", "broker.jsonc"), &cfg)
		loadYAMLOverlay(filepath.Join(directory, ".sessionbroker", "broker.overlay.yaml"), &cfg)
	}

	if extra := os.Getenv("BROKER_CONFIG"); extra != "" {
		loadConfigFile(extra, &cfg)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// loadConfigFile reads a JSON or JSONC file at path and merges it over cfg.
// A missing file is not an error; it is simply skipped.
func loadConfigFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	data = stripJSONComments(data)

	var layer types.Config
	if err := json.Unmarshal(data, &layer); err != nil {
		return err
	}

	mergeConfig(cfg, &layer)
	return nil
}

// loadYAMLOverlay reads an optional YAML overlay and merges it over cfg.
func loadYAMLOverlay(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var layer types.Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return err
	}

	mergeConfig(cfg, &layer)
	return nil
}

// stripJSONComments removes // and /* */ comments from JSONC.
func stripJSONComments(data []byte) []byte {
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	data = multiLine.ReplaceAll(data, nil)

	return data
}

// mergeConfig merges source over target. Zero-valued scalar fields in
// source leave target untouched; non-zero slices and structs replace
// target's wholesale, since the last layer's deny-list, say, is meant to
// be authoritative rather than additive.
func mergeConfig(target, source *types.Config) {
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.ConsumerMessageRateLimit.TokensPerSecond != 0 {
		target.ConsumerMessageRateLimit.TokensPerSecond = source.ConsumerMessageRateLimit.TokensPerSecond
	}
	if source.ConsumerMessageRateLimit.BurstSize != 0 {
		target.ConsumerMessageRateLimit.BurstSize = source.ConsumerMessageRateLimit.BurstSize
	}
	if source.MaxMessageHistoryLength != 0 {
		target.MaxMessageHistoryLength = source.MaxMessageHistoryLength
	}
	if source.MaxConcurrentSessions != 0 {
		target.MaxConcurrentSessions = source.MaxConcurrentSessions
	}
	if source.IdleSessionTimeoutMs != 0 {
		target.IdleSessionTimeoutMs = source.IdleSessionTimeoutMs
	}
	if source.ReconnectGracePeriodMs != 0 {
		target.ReconnectGracePeriodMs = source.ReconnectGracePeriodMs
	}
	if source.RelaunchDedupMs != 0 {
		target.RelaunchDedupMs = source.RelaunchDedupMs
	}
	if source.InitializeTimeoutMs != 0 {
		target.InitializeTimeoutMs = source.InitializeTimeoutMs
	}
	if source.KillGracePeriodMs != 0 {
		target.KillGracePeriodMs = source.KillGracePeriodMs
	}
	if source.RelaunchGracePeriodMs != 0 {
		target.RelaunchGracePeriodMs = source.RelaunchGracePeriodMs
	}
	if source.ResumeFailureThresholdMs != 0 {
		target.ResumeFailureThresholdMs = source.ResumeFailureThresholdMs
	}
	if source.EnvDenyList != nil {
		target.EnvDenyList = source.EnvDenyList
	}
	if source.CLIWebSocketURLTemplate != "" {
		target.CLIWebSocketURLTemplate = source.CLIWebSocketURLTemplate
	}
	if source.DefaultClaudeBinary != "" {
		target.DefaultClaudeBinary = source.DefaultClaudeBinary
	}
	if source.CLIRestartCircuitBreaker.FailureThreshold != 0 {
		target.CLIRestartCircuitBreaker = source.CLIRestartCircuitBreaker
	}
	if source.SlashCommand.PTYTimeoutMs != 0 || source.SlashCommand.PTYSilenceThresholdMs != 0 {
		target.SlashCommand = source.SlashCommand
	}
	if source.MCP != nil {
		target.MCP = source.MCP
	}
}

// applyEnvOverrides applies the environment variable overrides documented
// in doc.go. These have the highest precedence.
func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("BROKER_DEFAULT_CLAUDE_BINARY"); v != "" {
		cfg.DefaultClaudeBinary = v
	}
	if v := os.Getenv("BROKER_ENV_DENY_LIST"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.EnvDenyList = parts
	}
}

// Save writes cfg as indented JSON to path, creating parent directories as
// needed.
func Save(cfg *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
