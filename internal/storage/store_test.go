package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/pkg/types"
)

func TestFileStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	session := types.PersistedSession{
		ID:    "sess-1",
		State: types.SessionState{SessionID: "sess-1", Model: "claude-sonnet"},
	}
	require.NoError(t, fs.Save(ctx, session))

	loaded, err := fs.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", loaded.ID)
	assert.Equal(t, "claude-sonnet", loaded.State.Model)
	assert.Equal(t, persistedSessionSchemaVersion, loaded.SchemaVersion)
}

func TestFileStoreLoadAllSkipsNothingSaved(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	require.NoError(t, fs.Save(ctx, types.PersistedSession{ID: "a"}))
	require.NoError(t, fs.Save(ctx, types.PersistedSession{ID: "b"}))

	all, err := fs.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileStoreLoadAllEmptyIsNotError(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	all, err := fs.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStoreRemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	assert.NoError(t, fs.Remove(ctx, "does-not-exist"))
}

func TestFileStoreSetArchived(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	require.NoError(t, fs.Save(ctx, types.PersistedSession{ID: "sess-1"}))
	require.NoError(t, fs.SetArchived(ctx, "sess-1", true))

	loaded, err := fs.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, loaded.Archived)
}

func TestFileStoreLauncherStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	empty, err := fs.LoadLauncherState(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Sessions)

	state := types.LauncherState{
		Sessions: []types.SessionInfo{{ID: "sess-1", Cwd: "/tmp/proj"}},
	}
	require.NoError(t, fs.SaveLauncherState(ctx, state))

	loaded, err := fs.LoadLauncherState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Sessions, loaded.Sessions)
}
