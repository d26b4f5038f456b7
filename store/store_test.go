package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trackside/f1radio-cache/backend"
	"github.com/trackside/f1radio-cache/openf1"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	fs, err := backend.NewFilesystem(dir)
	require.NoError(t, err)

	return New(fs), dir
}

func testRadios() []openf1.RadioMessage {
	return []openf1.RadioMessage{
		{
			Date:         openf1.UTCTime{Time: time.Date(2023, 9, 16, 13, 30, 0, 0, time.UTC)},
			DriverNumber: 1,
			MeetingKey:   1219,
			RecordingURL: "https://livetiming.formula1.com/static/radio1.mp3",
			SessionKey:   9158,
		},
		{
			Date:         openf1.UTCTime{Time: time.Date(2023, 9, 16, 13, 45, 0, 0, time.UTC)},
			DriverNumber: 44,
			MeetingKey:   1219,
			RecordingURL: "https://livetiming.formula1.com/static/radio2.mp3",
			SessionKey:   9158,
		},
	}
}

func TestRadiosRoundTrip(t *testing.T) {
	assert := require.New(t)

	s, _ := newTestStore(t)
	ctx := context.Background()

	radios := testRadios()
	assert.True(s.SaveRadios(ctx, 9158, radios))

	got := s.LoadRadios(ctx, 9158)
	assert.Equal(radios, got)
}

func TestLoadRadiosMissing(t *testing.T) {
	assert := require.New(t)

	s, _ := newTestStore(t)

	assert.Nil(s.LoadRadios(context.Background(), 9999))
}

func TestLoadRadiosCorrupt(t *testing.T) {
	assert := require.New(t)

	s, dir := newTestStore(t)
	ctx := context.Background()

	assert.True(s.SaveRadios(ctx, 9158, testRadios()))

	p := filepath.Join(dir, "radios", "session_9158.json")
	assert.NoError(os.WriteFile(p, []byte("{not json"), 0644))

	assert.Nil(s.LoadRadios(ctx, 9158))
}

func TestSaveRadiosOverwrite(t *testing.T) {
	assert := require.New(t)

	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.True(s.SaveRadios(ctx, 9158, testRadios()))
	assert.True(s.SaveRadios(ctx, 9158, nil))

	got := s.LoadRadios(ctx, 9158)
	assert.Empty(got)

	// an overwritten empty entry is still an entry
	entries, err := s.Entries(ctx)
	assert.NoError(err)
	assert.Len(entries, 1)
	assert.Equal(0, entries[0].RadioCount)
}

func TestSessionsRoundTrip(t *testing.T) {
	assert := require.New(t)

	s, _ := newTestStore(t)
	ctx := context.Background()

	sessions := []openf1.Session{
		{SessionKey: 9158, SessionName: "Race", MeetingKey: 1219, Year: 2023, Location: "Marina Bay"},
		{SessionKey: 9159, SessionName: "Qualifying", MeetingKey: 1219, Year: 2023, Location: "Marina Bay"},
	}

	assert.True(s.SaveSessions(ctx, sessions))
	assert.Equal(sessions, s.LoadSessions(ctx))
}

func TestEntriesOrderedBySessionKeyDesc(t *testing.T) {
	assert := require.New(t)

	saved := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	fs, err := backend.NewFilesystem(dir)
	assert.NoError(err)

	s := New(fs, WithClock(func() time.Time { return saved }))
	ctx := context.Background()

	assert.True(s.SaveRadios(ctx, 9140, testRadios()))
	assert.True(s.SaveRadios(ctx, 9158, testRadios()))
	assert.True(s.SaveRadios(ctx, 9002, nil))

	entries, err := s.Entries(ctx)
	assert.NoError(err)
	assert.Len(entries, 3)
	assert.Equal(9158, entries[0].SessionKey)
	assert.Equal(9140, entries[1].SessionKey)
	assert.Equal(9002, entries[2].SessionKey)

	assert.Equal(2, entries[0].RadioCount)
	assert.Equal(saved, entries[0].SavedAt)
	assert.Greater(entries[0].FileSize, int64(0))
	assert.Contains(entries[0].ContentHash, "blake3:")
}

func TestEntriesSkipsCorrupt(t *testing.T) {
	assert := require.New(t)

	s, dir := newTestStore(t)
	ctx := context.Background()

	assert.True(s.SaveRadios(ctx, 9158, testRadios()))
	assert.True(s.SaveRadios(ctx, 9159, testRadios()))

	p := filepath.Join(dir, "radios", "session_9159.json")
	assert.NoError(os.WriteFile(p, []byte("garbage"), 0644))

	entries, err := s.Entries(ctx)
	assert.NoError(err)
	assert.Len(entries, 1)
	assert.Equal(9158, entries[0].SessionKey)
}

// notFoundBackend returns ErrNotFound wrapped with context, as a remote
// backend would.
type notFoundBackend struct {
	backend.Backend
}

func (notFoundBackend) Read(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("reading %s: %w", key, backend.ErrNotFound)
}

func TestLoadRadiosWrappedNotFoundIsQuietMiss(t *testing.T) {
	assert := require.New(t)

	var logs bytes.Buffer
	s := New(notFoundBackend{}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	assert.Nil(s.LoadRadios(context.Background(), 9158))
	assert.NotContains(logs.String(), "failed to read cache entry")
}

func TestPurgeOlderThan(t *testing.T) {
	assert := require.New(t)

	s, dir := newTestStore(t)
	ctx := context.Background()

	assert.True(s.SaveRadios(ctx, 9158, testRadios()))
	assert.True(s.SaveRadios(ctx, 9159, testRadios()))
	assert.True(s.SaveSessions(ctx, []openf1.Session{{SessionKey: 9158}}))

	// age one radio entry and the session list past the cutoff
	old := time.Now().Add(-48 * time.Hour)
	assert.NoError(os.Chtimes(filepath.Join(dir, "radios", "session_9158.json"), old, old))
	assert.NoError(os.Chtimes(filepath.Join(dir, "sessions", "sessions.json"), old, old))

	assert.True(s.PurgeOlderThan(ctx, 24*time.Hour))

	assert.Nil(s.LoadRadios(ctx, 9158))
	assert.NotNil(s.LoadRadios(ctx, 9159))
	assert.Nil(s.LoadSessions(ctx))
}
