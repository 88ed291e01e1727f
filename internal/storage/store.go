// Package storage is the broker's session persistence layer (spec.md
// §6): best-effort, not transactional, file-based JSON with one
// flock-guarded file per session plus a launcher-state file listing
// which sessions exist. Restore-on-boot is idempotent by construction —
// for each persisted session not already present in the in-memory
// registry, rehydrate it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sessionbroker/broker/pkg/types"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence contract every coordinator depends on.
type Store interface {
	SaveLauncherState(ctx context.Context, state types.LauncherState) error
	LoadLauncherState(ctx context.Context) (types.LauncherState, error)

	Save(ctx context.Context, session types.PersistedSession) error
	Load(ctx context.Context, id string) (types.PersistedSession, error)
	LoadAll(ctx context.Context) ([]types.PersistedSession, error)
	Remove(ctx context.Context, id string) error
	SetArchived(ctx context.Context, id string, archived bool) error
}

const persistedSessionSchemaVersion = 1

// FileStore is the file-based Store implementation: one JSON file per
// session under basePath/sessions/<id>.json, plus basePath/launcher.json
// for the launcher state. Writes go through a temp-file-then-rename for
// atomicity and a per-file flock so two processes (or goroutines) never
// interleave writes to the same file.
type FileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*FileLock
}

// NewFileStore creates a FileStore rooted at basePath.
func NewFileStore(basePath string) *FileStore {
	return &FileStore{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

var launcherStatePath = []string{"launcher"}

func sessionPath(id string) []string {
	return []string{"sessions", id}
}

func (fs *FileStore) pathToFile(path []string) string {
	parts := append([]string{fs.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (fs *FileStore) pathToDir(path []string) string {
	parts := append([]string{fs.basePath}, path...)
	return filepath.Join(parts...)
}

func (fs *FileStore) lockFor(filePath string) *FileLock {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	lock, ok := fs.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		fs.locks[filePath] = lock
	}
	return lock
}

// get reads and unmarshals the JSON file at path, returning ErrNotFound
// if it doesn't exist.
func (fs *FileStore) get(path []string, v any) error {
	data, err := os.ReadFile(fs.pathToFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

// put marshals v and writes it to path under an exclusive file lock,
// via a temp-file-then-rename for atomicity.
func (fs *FileStore) put(path []string, v any) error {
	filePath := fs.pathToFile(path)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := fs.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// delete removes the file at path under its lock. A missing file is not
// an error.
func (fs *FileStore) delete(path []string) error {
	filePath := fs.pathToFile(path)

	lock := fs.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// scan calls fn with the raw JSON of every file directly under path,
// skipping entries it can't read rather than aborting the walk.
func (fs *FileStore) scan(path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := fs.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// SaveLauncherState persists the registry of known sessions.
func (fs *FileStore) SaveLauncherState(ctx context.Context, state types.LauncherState) error {
	return fs.put(launcherStatePath, state)
}

// LoadLauncherState loads the registry of known sessions. A missing file
// is not an error; it yields an empty LauncherState, matching first-boot
// behavior.
func (fs *FileStore) LoadLauncherState(ctx context.Context) (types.LauncherState, error) {
	var state types.LauncherState
	if err := fs.get(launcherStatePath, &state); err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.LauncherState{}, nil
		}
		return types.LauncherState{}, err
	}
	return state, nil
}

// Save persists a single session's durable state.
func (fs *FileStore) Save(ctx context.Context, session types.PersistedSession) error {
	session.SchemaVersion = persistedSessionSchemaVersion
	return fs.put(sessionPath(session.ID), session)
}

// Load loads a single session's durable state by id.
func (fs *FileStore) Load(ctx context.Context, id string) (types.PersistedSession, error) {
	var session types.PersistedSession
	if err := fs.get(sessionPath(id), &session); err != nil {
		return types.PersistedSession{}, err
	}
	return session, nil
}

// LoadAll loads every persisted session, skipping any entry that fails to
// unmarshal rather than aborting the whole restore.
func (fs *FileStore) LoadAll(ctx context.Context) ([]types.PersistedSession, error) {
	var sessions []types.PersistedSession

	err := fs.scan([]string{"sessions"}, func(key string, data json.RawMessage) error {
		var session types.PersistedSession
		if err := json.Unmarshal(data, &session); err != nil {
			return nil
		}
		sessions = append(sessions, session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Remove deletes a session's persisted state. Removing an already-absent
// session is not an error.
func (fs *FileStore) Remove(ctx context.Context, id string) error {
	return fs.delete(sessionPath(id))
}

// SetArchived flips a session's archived flag in place.
func (fs *FileStore) SetArchived(ctx context.Context, id string, archived bool) error {
	session, err := fs.Load(ctx, id)
	if err != nil {
		return err
	}
	session.Archived = archived
	return fs.Save(ctx, session)
}
