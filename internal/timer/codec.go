package timer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidDocument is returned by Decode when a document does not match
// the session schema.
var ErrInvalidDocument = errors.New("timer: invalid session document")

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://timerkit.local/schema/timer-session-v1.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func sessionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// document is the persisted form of a Session. Times are absolute calendar
// timestamps, so a decoded session measures elapsed time against the wall
// clock: a session saved mid-run keeps counting across a restart, at the
// cost of following any wall-clock jump that happens meanwhile.
type document struct {
	ID             string     `json:"id"`
	Duration       float64    `json:"duration"`
	StartTime      *time.Time `json:"startTime"`
	Status         Status     `json:"status"`
	PausedAt       *time.Time `json:"pausedAt"`
	PausedDuration float64    `json:"pausedDuration"`
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	doc := document{
		ID:             s.id,
		Duration:       s.duration.Seconds(),
		Status:         s.status,
		PausedDuration: s.pausedFor.Seconds(),
	}
	if !s.start.IsZero() {
		t := s.start.Round(0)
		doc.StartTime = &t
	}
	if !s.pausedAt.IsZero() {
		t := s.pausedAt.Round(0)
		doc.PausedAt = &t
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler. The clock is kept if already
// set, otherwise SystemClock is used.
func (s *Session) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}

	s.id = doc.ID
	s.duration = seconds(doc.Duration)
	s.status = doc.Status
	s.start = time.Time{}
	s.pausedAt = time.Time{}
	s.pausedFor = seconds(doc.PausedDuration)
	if doc.StartTime != nil {
		s.start = *doc.StartTime
	}
	if doc.PausedAt != nil {
		s.pausedAt = *doc.PausedAt
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	return nil
}

// Encode serializes a session to its JSON document.
func Encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

// Decode validates data against the session schema and returns the
// decoded session.
func Decode(data []byte, opts ...Option) (*Session, error) {
	schema, err := sessionSchema()
	if err != nil {
		return nil, fmt.Errorf("load session schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	s := &Session{clock: SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return s, nil
}

func seconds(v float64) time.Duration {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(math.Round(v * float64(time.Second)))
}
