package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"timerkit/internal/security"
)

// Owner is an exclusive claim on driving one session. Only the process
// holding it runs a polling loop for that session.
type Owner struct {
	id   string
	lock *security.FileLock
}

// ValidateID rejects ids that are empty, contain a path separator or start
// with a dot. Such ids cannot name an owner lock file.
func ValidateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// AcquireOwner takes the owner lock for id in dir without blocking. It
// returns ErrLocked when another process holds it.
func AcquireOwner(dir, id string) (*Owner, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	lock, err := security.TryLockFile(filepath.Join(dir, id+".lock"))
	if err != nil {
		if errors.Is(err, security.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, id)
		}
		return nil, fmt.Errorf("acquire owner lock: %w", err)
	}
	return &Owner{id: id, lock: lock}, nil
}

// ID returns the owned session id.
func (o *Owner) ID() string { return o.id }

// Release gives up ownership.
func (o *Owner) Release() error {
	return o.lock.Release()
}
