package coordinator

import (
	"context"

	"github.com/sessionbroker/broker/internal/eventbus"
	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/internal/mcp"
)

// InitializeMCP connects to every MCP server declared in cfg.MCP. Servers
// are broker-wide, not per-session: one shared client is built once at
// construction and probed here so every session's capabilities snapshot
// can report which servers are actually reachable. A server that fails to
// connect is recorded as failed and does not stop the others from being
// tried.
func (c *Coordinator) InitializeMCP(ctx context.Context) error {
	if c.cfg.MCP == nil {
		return nil
	}

	for name, cfg := range c.cfg.MCP {
		enabled := cfg.Enabled == nil || *cfg.Enabled
		mcpCfg := &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(cfg.Type),
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Command:     cfg.Command,
			Environment: cfg.Environment,
			Timeout:     cfg.Timeout,
		}
		if err := c.mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
			logging.Warn().Err(err).Str("mcpServer", name).Msg("mcp server connect failed")
			continue
		}
	}

	return nil
}

// CloseMCP disconnects every MCP server connection.
func (c *Coordinator) CloseMCP() error {
	if c.mcpClient == nil {
		return nil
	}
	return c.mcpClient.Close()
}

// connectedMCPServers lists the MCP servers currently reporting
// mcp.StatusConnected, for inclusion in a session's capabilities result.
func (c *Coordinator) connectedMCPServers() []string {
	if c.mcpClient == nil {
		return nil
	}
	statuses := c.mcpClient.Status()
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if s.Status == mcp.StatusConnected {
			names = append(names, s.Name)
		}
	}
	return names
}

// onCapabilitiesReady applies a resolved adapter-native initialize
// response onto the session's runtime: the negotiated slash commands join
// the dynamic CLI registry, and the MCP snapshot records which servers
// were reachable at negotiation time.
func (c *Coordinator) onCapabilitiesReady(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.CapabilitiesReadyData)
	if !ok {
		return
	}
	rt, ok := c.Registry.Get(ev.SessionID)
	if !ok {
		return
	}
	if len(data.SlashCommands) > 0 {
		rt.RegisterCLICommands(data.SlashCommands)
	}
	if data.MCPServers != nil {
		rt.SetMCPServers(data.MCPServers)
	}
}
