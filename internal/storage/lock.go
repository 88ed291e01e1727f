package storage

import (
	"github.com/gofrs/flock"
)

// FileLock provides file-based advisory locking for concurrent access,
// portable across platforms via gofrs/flock rather than a direct
// syscall.Flock call.
type FileLock struct {
	path string
	fl   *flock.Flock
}

// NewFileLock creates a new file lock guarding path+".lock".
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path: path,
		fl:   flock.New(path + ".lock"),
	}
}

// Lock acquires an exclusive, blocking lock.
func (l *FileLock) Lock() error {
	return l.fl.Lock()
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() bool {
	ok, err := l.fl.TryLock()
	return err == nil && ok
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.fl.Unlock()
}
