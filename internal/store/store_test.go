package store

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timerkit/internal/security"
	"timerkit/internal/timer"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "sessions.db"), testKey(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsShortKey(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), []byte("short"))
	assert.ErrorIs(t, err, security.ErrInvalidKeySize)
}

func TestOpenSetsSecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no unix permission bits")
	}
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, testKey())
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, security.PermSecretFile, info.Mode().Perm())
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestPing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, testKey())
	require.NoError(t, err)

	assert.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	clock := timer.NewManualClock(epoch)

	sess := timer.New(90*time.Second, timer.WithClock(clock))
	sess.Start()
	clock.Advance(20 * time.Second)
	sess.Pause()
	require.NoError(t, s.Save(sess))

	loaded, err := s.Load(sess.ID(), timer.WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), loaded.ID())
	assert.Equal(t, timer.Paused, loaded.Status())
	assert.Equal(t, 90*time.Second, loaded.Duration())
	assert.Equal(t, 20*time.Second, loaded.Elapsed())

	clock.Advance(time.Hour)
	assert.Equal(t, 20*time.Second, loaded.Elapsed())
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)
	clock := timer.NewManualClock(epoch)

	sess := timer.New(time.Minute, timer.WithClock(clock))
	require.NoError(t, s.Save(sess))
	sess.Start()
	clock.Advance(10 * time.Second)
	require.NoError(t, s.Save(sess))

	loaded, err := s.Load(sess.ID(), timer.WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, timer.InProgress, loaded.Status())
	assert.Equal(t, 50*time.Second, loaded.Remaining())

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLoadNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadDetectsTampering(t *testing.T) {
	s := openTestStore(t)
	sess := timer.New(time.Minute)
	require.NoError(t, s.Save(sess))

	_, err := s.db.Exec(`UPDATE sessions SET document = replace(document, '"duration":60', '"duration":6000') WHERE id = ?`, sess.ID())
	require.NoError(t, err)

	_, err = s.Load(sess.ID())
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLoadWithDifferentKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, testKey())
	require.NoError(t, err)
	sess := timer.New(time.Minute)
	require.NoError(t, s.Save(sess))
	require.NoError(t, s.Close())

	other, err := Open(path, []byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Load(sess.ID())
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestListOrderedByUpdateTime(t *testing.T) {
	now := epoch
	s := openTestStore(t, withNow(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))

	a := timer.New(time.Minute)
	b := timer.New(2 * time.Minute)
	require.NoError(t, s.Save(a))
	require.NoError(t, s.Save(b))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID(), list[0].ID)
	assert.Equal(t, 2*time.Minute, list[0].Duration)
	assert.Equal(t, timer.NotStarted, list[0].Status)

	a.Start()
	require.NoError(t, s.Save(a))

	list, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, a.ID(), list[0].ID)
	assert.Equal(t, timer.InProgress, list[0].Status)
	assert.True(t, list[0].UpdatedAt.After(list[0].CreatedAt))
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	sess := timer.New(time.Minute)
	require.NoError(t, s.Save(sess))

	require.NoError(t, s.Delete(sess.ID()))
	_, err := s.Load(sess.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(sess.ID()), ErrNotFound)
}

func TestAcquireOwner(t *testing.T) {
	dir := t.TempDir()

	owner, err := AcquireOwner(dir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", owner.ID())

	_, err = AcquireOwner(dir, "abc123")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := AcquireOwner(dir, "def456")
	require.NoError(t, err)
	require.NoError(t, other.Release())

	require.NoError(t, owner.Release())
	again, err := AcquireOwner(dir, "abc123")
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireOwnerRejectsPathIDs(t *testing.T) {
	for _, id := range []string{"", "../x", "a/b", `a\b`, ".hidden"} {
		_, err := AcquireOwner(t.TempDir(), id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
}

func TestSaveRejectsInvalidID(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{".x", "a/b", `a\b`} {
		err := s.Save(timer.New(time.Minute, timer.WithID(id)))
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
