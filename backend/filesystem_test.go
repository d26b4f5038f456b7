package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemWriteRead(t *testing.T) {
	assert := require.New(t)

	fs, err := NewFilesystem(t.TempDir())
	assert.NoError(err)

	ctx := context.Background()

	err = fs.Write(ctx, "radios/session_9158.json", []byte(`{"count":2}`))
	assert.NoError(err)

	data, err := fs.Read(ctx, "radios/session_9158.json")
	assert.NoError(err)
	assert.Equal([]byte(`{"count":2}`), data)
}

func TestFilesystemReadMissing(t *testing.T) {
	assert := require.New(t)

	fs, err := NewFilesystem(t.TempDir())
	assert.NoError(err)

	_, err = fs.Read(context.Background(), "radios/session_1.json")
	assert.ErrorIs(err, ErrNotFound)
}

func TestFilesystemOverwrite(t *testing.T) {
	assert := require.New(t)

	fs, err := NewFilesystem(t.TempDir())
	assert.NoError(err)

	ctx := context.Background()

	assert.NoError(fs.Write(ctx, "sessions/sessions.json", []byte("first")))
	assert.NoError(fs.Write(ctx, "sessions/sessions.json", []byte("second")))

	data, err := fs.Read(ctx, "sessions/sessions.json")
	assert.NoError(err)
	assert.Equal([]byte("second"), data)
}

func TestFilesystemDelete(t *testing.T) {
	assert := require.New(t)

	fs, err := NewFilesystem(t.TempDir())
	assert.NoError(err)

	ctx := context.Background()

	assert.NoError(fs.Write(ctx, "radios/session_1.json", []byte("x")))
	assert.NoError(fs.Delete(ctx, "radios/session_1.json"))

	ok, err := fs.Exists(ctx, "radios/session_1.json")
	assert.NoError(err)
	assert.False(ok)

	// deleting again is fine
	assert.NoError(fs.Delete(ctx, "radios/session_1.json"))
}

func TestFilesystemList(t *testing.T) {
	assert := require.New(t)

	fs, err := NewFilesystem(t.TempDir())
	assert.NoError(err)

	ctx := context.Background()

	assert.NoError(fs.Write(ctx, "radios/session_9158.json", []byte("a")))
	assert.NoError(fs.Write(ctx, "radios/session_9159.json", []byte("b")))
	assert.NoError(fs.Write(ctx, "sessions/sessions.json", []byte("c")))

	keys, err := fs.List(ctx, "radios")
	assert.NoError(err)
	assert.ElementsMatch([]string{"radios/session_9158.json", "radios/session_9159.json"}, keys)

	keys, err = fs.List(ctx, "meetings")
	assert.NoError(err)
	assert.Empty(keys)
}

func TestFilesystemListSkipsTempFiles(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	fs, err := NewFilesystem(dir)
	assert.NoError(err)

	ctx := context.Background()

	assert.NoError(fs.Write(ctx, "radios/session_1.json", []byte("a")))
	assert.NoError(os.WriteFile(filepath.Join(dir, "radios", ".tmp-123"), []byte("partial"), 0644))

	keys, err := fs.List(ctx, "radios")
	assert.NoError(err)
	assert.Equal([]string{"radios/session_1.json"}, keys)
}

func TestFilesystemStat(t *testing.T) {
	assert := require.New(t)

	fs, err := NewFilesystem(t.TempDir())
	assert.NoError(err)

	ctx := context.Background()

	assert.NoError(fs.Write(ctx, "radios/session_1.json", []byte("hello")))

	info, err := fs.Stat(ctx, "radios/session_1.json")
	assert.NoError(err)
	assert.Equal(int64(5), info.Size)
	assert.False(info.ModTime.IsZero())

	_, err = fs.Stat(ctx, "radios/session_2.json")
	assert.ErrorIs(err, ErrNotFound)
}

func TestFilesystemKeyConfinement(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	fs, err := NewFilesystem(dir)
	assert.NoError(err)

	ctx := context.Background()

	err = fs.Write(ctx, "../../escape.json", []byte("x"))
	assert.NoError(err)

	// the traversal components are stripped, keeping the file under root
	ok, err := fs.Exists(ctx, "escape.json")
	assert.NoError(err)
	assert.True(ok)
}
