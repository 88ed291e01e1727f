package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddServerDisabledStaysDisabled(t *testing.T) {
	c := NewClient()
	ctx := context.Background()

	err := c.AddServer(ctx, "disabled-server", &Config{Enabled: false})
	require.NoError(t, err)

	status, err := c.GetServer("disabled-server")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, status.Status)
	assert.Equal(t, 1, c.ServerCount())
	assert.Equal(t, 0, c.ConnectedCount())
}

func TestAddServerDuplicateNameRejected(t *testing.T) {
	c := NewClient()
	ctx := context.Background()

	require.NoError(t, c.AddServer(ctx, "dup", &Config{Enabled: false}))
	err := c.AddServer(ctx, "dup", &Config{Enabled: false})
	assert.Error(t, err)
}

func TestAddServerUnknownTransportFails(t *testing.T) {
	c := NewClient()
	ctx := context.Background()

	err := c.AddServer(ctx, "bad-transport", &Config{Enabled: true, Type: "carrier-pigeon"})
	assert.Error(t, err)

	status, err := c.GetServer("bad-transport")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status.Status)
	require.NotNil(t, status.Error)
}

func TestGetServerNotFound(t *testing.T) {
	c := NewClient()
	_, err := c.GetServer("nope")
	assert.Error(t, err)
}

func TestRemoveServer(t *testing.T) {
	c := NewClient()
	ctx := context.Background()
	require.NoError(t, c.AddServer(ctx, "s1", &Config{Enabled: false}))

	require.NoError(t, c.RemoveServer("s1"))
	assert.Equal(t, 0, c.ServerCount())

	err := c.RemoveServer("s1")
	assert.Error(t, err)
}

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "my_server", sanitizeToolName("my-server"))
	assert.Equal(t, "my_server_2", sanitizeToolName("my.server 2"))
	assert.Equal(t, "Plain123", sanitizeToolName("Plain123"))
}

func TestCloseClearsServers(t *testing.T) {
	c := NewClient()
	ctx := context.Background()
	require.NoError(t, c.AddServer(ctx, "s1", &Config{Enabled: false}))
	require.NoError(t, c.AddServer(ctx, "s2", &Config{Enabled: false}))

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.ServerCount())
}
