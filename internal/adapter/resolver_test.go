package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string              { return f.name }
func (f *fakeAdapter) Capabilities() Capabilities { return Capabilities{} }
func (f *fakeAdapter) Style() ConnectionStyle     { return StyleOutboundSpawn }
func (f *fakeAdapter) Connect(ctx context.Context, sessionID string, opts ConnectOptions) (BackendSession, error) {
	return BackendSession{SessionID: sessionID}, nil
}

func TestResolverRegisterGetUnregister(t *testing.T) {
	r := NewResolver()
	r.Register(&fakeAdapter{name: "claude-code"})

	got, err := r.Get("claude-code")
	require.NoError(t, err)
	assert.Equal(t, "claude-code", got.Name())

	r.Unregister("claude-code")
	_, err = r.Get("claude-code")
	assert.Error(t, err)
}

func TestResolverNames(t *testing.T) {
	r := NewResolver()
	r.Register(&fakeAdapter{name: "a"})
	r.Register(&fakeAdapter{name: "b"})
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}
