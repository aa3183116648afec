package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLockHeld is returned by TryLockFile when another open file holds the
// lock.
var ErrLockHeld = errors.New("security: lock held elsewhere")

// FileLock is an exclusive advisory lock on a file.
type FileLock struct {
	f *os.File
}

// TryLockFile opens (creating if needed) the file at path and takes an
// exclusive lock on it without blocking.
func TryLockFile(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), PermSecretDir); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, PermSecretFile)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.f.Name() }

// Release unlocks and closes the lock file. The file itself is left in
// place so a concurrent locker never races an unlink.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	uerr := unlockFile(l.f)
	cerr := l.f.Close()
	l.f = nil
	return errors.Join(uerr, cerr)
}
