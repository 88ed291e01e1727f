package types

// RateLimitConfig bounds per-consumer inbound message throughput (spec §6).
type RateLimitConfig struct {
	TokensPerSecond float64 `json:"tokensPerSecond" yaml:"tokensPerSecond"`
	BurstSize       int     `json:"burstSize" yaml:"burstSize"`
}

// CircuitBreakerConfig parameterizes the sliding-window backend-crash
// circuit breaker (spec §4.6, §9 REDESIGN FLAG).
type CircuitBreakerConfig struct {
	FailureThreshold int   `json:"failureThreshold" yaml:"failureThreshold"`
	WindowMs         int64 `json:"windowMs" yaml:"windowMs"`
	RecoveryTimeMs   int64 `json:"recoveryTimeMs" yaml:"recoveryTimeMs"`
	SuccessThreshold int   `json:"successThreshold" yaml:"successThreshold"`
}

// SlashCommandConfig configures the PTY fallback used to run slash
// commands that a backend adapter cannot service natively.
type SlashCommandConfig struct {
	PTYEnabled           bool  `json:"ptyEnabled" yaml:"ptyEnabled"`
	PTYTimeoutMs         int64 `json:"ptyTimeoutMs" yaml:"ptyTimeoutMs"`
	PTYSilenceThresholdMs int64 `json:"ptySilenceThresholdMs" yaml:"ptySilenceThresholdMs"`
}

// Config is the full set of configuration keys the broker core recognizes
// (spec §6). Zero values are replaced by Defaults() where a key is absent
// from every loaded layer.
type Config struct {
	Port int `json:"port" yaml:"port"`

	ConsumerMessageRateLimit RateLimitConfig `json:"consumerMessageRateLimit" yaml:"consumerMessageRateLimit"`

	MaxMessageHistoryLength int `json:"maxMessageHistoryLength" yaml:"maxMessageHistoryLength"`
	MaxConcurrentSessions   int `json:"maxConcurrentSessions" yaml:"maxConcurrentSessions"`

	IdleSessionTimeoutMs     int64 `json:"idleSessionTimeoutMs" yaml:"idleSessionTimeoutMs"`
	ReconnectGracePeriodMs   int64 `json:"reconnectGracePeriodMs" yaml:"reconnectGracePeriodMs"`
	RelaunchDedupMs          int64 `json:"relaunchDedupMs" yaml:"relaunchDedupMs"`
	InitializeTimeoutMs      int64 `json:"initializeTimeoutMs" yaml:"initializeTimeoutMs"`
	KillGracePeriodMs        int64 `json:"killGracePeriodMs" yaml:"killGracePeriodMs"`
	RelaunchGracePeriodMs    int64 `json:"relaunchGracePeriodMs" yaml:"relaunchGracePeriodMs"`
	ResumeFailureThresholdMs int64 `json:"resumeFailureThresholdMs" yaml:"resumeFailureThresholdMs"`

	EnvDenyList []string `json:"envDenyList" yaml:"envDenyList"`

	CLIWebSocketURLTemplate string `json:"cliWebSocketUrlTemplate" yaml:"cliWebSocketUrlTemplate"`
	DefaultClaudeBinary     string `json:"defaultClaudeBinary" yaml:"defaultClaudeBinary"`

	CLIRestartCircuitBreaker CircuitBreakerConfig `json:"cliRestartCircuitBreaker" yaml:"cliRestartCircuitBreaker"`
	SlashCommand             SlashCommandConfig   `json:"slashCommand" yaml:"slashCommand"`

	// MCP declares the MCP servers the broker probes at startup so a
	// session's capability snapshot can report which are reachable
	// (internal/mcp, spec §3/§4.6 "mcpServers").
	MCP map[string]MCPConfig `json:"mcp,omitempty" yaml:"mcp,omitempty"`
}

// MCPConfig configures one MCP server the broker connects to directly.
type MCPConfig struct {
	Type        string            `json:"type,omitempty" yaml:"type,omitempty"` // "local"|"stdio"|"remote"
	Command     []string          `json:"command,omitempty" yaml:"command,omitempty"`
	URL         string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Timeout     int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
