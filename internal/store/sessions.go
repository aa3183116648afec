package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timerkit/internal/security"
	"timerkit/internal/timer"
)

// Summary describes a stored session without decoding it.
type Summary struct {
	ID        string
	Status    timer.Status
	Duration  time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Save inserts or replaces the stored copy of sess.
func (s *Store) Save(sess *timer.Session) error {
	if err := ValidateID(sess.ID()); err != nil {
		return err
	}
	doc, err := timer.Encode(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	id := sess.ID()
	mac := s.mac(id, doc)
	now := s.now().UnixNano()

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, status, duration_ns, document, hmac, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			duration_ns = excluded.duration_ns,
			document = excluded.document,
			hmac = excluded.hmac,
			updated_at = excluded.updated_at`,
		id, sess.Status().String(), int64(sess.Duration()), doc, mac, now, now,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Load reads, verifies and decodes the session with the given id. opts are
// passed to timer.Decode.
func (s *Store) Load(id string, opts ...timer.Option) (*timer.Session, error) {
	doc, err := s.Document(id)
	if err != nil {
		return nil, err
	}
	sess, err := timer.Decode(doc, opts...)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

// Document returns the verified serialization document of a session.
func (s *Store) Document(id string) ([]byte, error) {
	var doc, mac []byte
	err := s.db.QueryRow(`SELECT document, hmac FROM sessions WHERE id = ?`, id).Scan(&doc, &mac)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !security.SecureCompare(mac, s.mac(id, doc)) {
		return nil, fmt.Errorf("%w: session %s", ErrIntegrity, id)
	}
	return doc, nil
}

// List returns all stored sessions, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, status, duration_ns, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum                  Summary
			status               string
			duration             int64
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&sum.ID, &status, &duration, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sum.Status, err = timer.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("session %s: %w", sum.ID, err)
		}
		sum.Duration = time.Duration(duration)
		sum.CreatedAt = time.Unix(0, createdAt)
		sum.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) mac(id string, doc []byte) []byte {
	return security.MAC(s.hmacKey, []byte(id), doc)
}
