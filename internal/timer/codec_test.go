package timer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDocumentShape(t *testing.T) {
	s, clock := newManualSession(t, 90*time.Second)
	s.Start()
	clock.Advance(5 * time.Second)
	s.Pause()
	clock.Advance(3 * time.Second)
	s.Resume()
	clock.Advance(time.Second)
	s.Pause()

	data, err := Encode(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, s.ID(), raw["id"])
	assert.Equal(t, 90.0, raw["duration"])
	assert.Equal(t, "isPaused", raw["status"])
	assert.Equal(t, 3.0, raw["pausedDuration"])
	assert.Equal(t, epoch.Format(time.RFC3339Nano), raw["startTime"])
	assert.Equal(t, epoch.Add(9*time.Second).Format(time.RFC3339Nano), raw["pausedAt"])
}

func TestEncodeNotStartedUsesNulls(t *testing.T) {
	s, _ := newManualSession(t, time.Minute)

	data, err := Encode(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["startTime"])
	assert.Nil(t, raw["pausedAt"])
	assert.Equal(t, "notStarted", raw["status"])
}

func TestDecodePausedSessionStaysFrozen(t *testing.T) {
	s, clock := newManualSession(t, time.Minute)
	s.Start()
	clock.Advance(10 * time.Second)
	s.Pause()

	data, err := Encode(s)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	decoded, err := Decode(data, WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, s.ID(), decoded.ID())
	assert.Equal(t, Paused, decoded.Status())
	assert.Equal(t, 10*time.Second, decoded.Elapsed())

	decoded.Resume()
	clock.Advance(5 * time.Second)
	assert.Equal(t, 15*time.Second, decoded.Elapsed())
}

func TestDecodeRunningSessionKeepsCounting(t *testing.T) {
	s, clock := newManualSession(t, time.Minute)
	s.Start()
	clock.Advance(2 * time.Second)
	s.Pause()
	clock.Advance(4 * time.Second)
	s.Resume()
	before := s.Elapsed()

	data, err := Encode(s)
	require.NoError(t, err)

	clock.Advance(7 * time.Second)
	decoded, err := Decode(data, WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, Resumed, decoded.Status())
	assert.Equal(t, before+7*time.Second, decoded.Elapsed())
}

func TestRoundTripAcrossRealDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real sleeps")
	}
	s := New(time.Minute)
	s.Start()
	time.Sleep(20 * time.Millisecond)

	data, err := Encode(s)
	require.NoError(t, err)
	before := s.Elapsed()

	const delta = 150 * time.Millisecond
	time.Sleep(delta)

	decoded, err := Decode(data)
	require.NoError(t, err)
	after := decoded.Elapsed()

	assert.InDelta(t, (before + delta).Seconds(), after.Seconds(), 0.05)
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing id":       `{"duration": 1, "startTime": null, "status": "notStarted"}`,
		"empty id":         `{"id": "", "duration": 1, "startTime": null, "status": "notStarted"}`,
		"unknown status":   `{"id": "a", "duration": 1, "startTime": null, "status": "running"}`,
		"negative":         `{"id": "a", "duration": -1, "startTime": null, "status": "notStarted"}`,
		"extra field":      `{"id": "a", "duration": 1, "startTime": null, "status": "notStarted", "color": "red"}`,
		"missing start":    `{"id": "a", "duration": 1, "status": "notStarted"}`,
		"string duration":  `{"id": "a", "duration": "1", "startTime": null, "status": "notStarted"}`,
		"negative pausing": `{"id": "a", "duration": 1, "startTime": null, "status": "notStarted", "pausedDuration": -2}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestDecodeMinimalDocument(t *testing.T) {
	s, err := Decode([]byte(`{"id": "abc", "duration": 1.5, "startTime": null, "status": "isCompleted"}`))
	require.NoError(t, err)

	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, 1500*time.Millisecond, s.Duration())
	assert.Equal(t, Completed, s.Status())
	assert.Zero(t, s.Elapsed())
	assert.Equal(t, SystemClock, s.Clock())
}

func TestStatusText(t *testing.T) {
	for _, st := range []Status{NotStarted, InProgress, Paused, Resumed, Completed} {
		text, err := st.MarshalText()
		require.NoError(t, err)

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, st, back)
	}

	_, err := Status(42).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Status(42)", Status(42).String())

	_, err = ParseStatus("bogus")
	assert.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{400 * time.Millisecond, "00:01"},
		{59 * time.Second, "00:59"},
		{61 * time.Second, "01:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatClock(tc.in), "FormatClock(%v)", tc.in)
	}
}
