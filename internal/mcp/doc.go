// Package mcp provides Model Context Protocol (MCP) client functionality
// for the session broker's capabilities policy: connecting to the MCP
// servers declared in the broker's configuration and reporting which are
// reachable, so the
// broker's capability snapshot (SessionState.MCPServers) reflects reality
// rather than static configuration. The broker does not execute MCP tools
// itself — tool calls flow through the backend adapter, not through this
// package.
//
// # Transport Types
//
//	TransportTypeStdio  - communication via stdin/stdout with a subprocess
//	TransportTypeLocal  - direct execution of local commands
//	TransportTypeRemote - HTTP-based (SSE) communication with remote servers
//
// # Basic Usage
//
//	client := mcp.NewClient()
//	err := client.AddServer(ctx, "my-server", &mcp.Config{
//		Enabled: true,
//		Type:    mcp.TransportTypeStdio,
//		Command: []string{"python", "-m", "my_mcp_server"},
//		Timeout: 5000,
//	})
//
//	status := client.Status()
//	for _, server := range status {
//		if server.Status == mcp.StatusFailed {
//			fmt.Printf("server %s failed: %s\n", server.Name, *server.Error)
//		}
//	}
//
// # Protocol Version
//
// This package implements MCP protocol version 2024-11-05 using the
// official MCP Go SDK.
package mcp
