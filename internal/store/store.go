// Package store keeps timer sessions in a local SQLite database.
//
// Each row holds the session's serialization document together with an
// HMAC-SHA256 over the session id and the document, keyed by a key the
// caller derives from its master key. Load refuses rows whose HMAC does not
// verify, so a hand-edited database cannot resurrect or rewind a timer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"timerkit/internal/security"
)

var (
	// ErrNotFound is returned when no session has the requested id.
	ErrNotFound = errors.New("store: session not found")
	// ErrIntegrity is returned when a stored row fails HMAC verification.
	ErrIntegrity = errors.New("store: integrity check failed")
	// ErrLocked is returned by AcquireOwner when another process owns the
	// session.
	ErrLocked = errors.New("store: session is owned by another process")
	// ErrInvalidID is returned for ids that cannot name a lock file.
	ErrInvalidID = errors.New("store: invalid session id")
)

// DefaultBusyTimeout is how long SQLite waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    duration_ns INTEGER NOT NULL,
    document    BLOB NOT NULL,
    hmac        BLOB NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// Option configures Open.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
	now         func() time.Time
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// withNow overrides the row timestamp source in tests.
func withNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Store is a SQLite-backed session store. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	hmacKey []byte
	now     func() time.Time
}

// Open opens or creates the database at path. hmacKey authenticates rows and
// must be at least security.KeySize bytes.
func Open(path string, hmacKey []byte, opts ...Option) (*Store, error) {
	if len(hmacKey) < security.KeySize {
		return nil, fmt.Errorf("%w: HMAC key must be at least %d bytes", security.ErrInvalidKeySize, security.KeySize)
	}

	o := options{busyTimeout: DefaultBusyTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), security.PermSecretDir); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := os.Chmod(path, security.PermSecretFile); err != nil {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	key := make([]byte, len(hmacKey))
	copy(key, hmacKey)
	return &Store{db: db, hmacKey: key, now: o.now}, nil
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
