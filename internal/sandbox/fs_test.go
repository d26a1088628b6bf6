package sandbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindvault/internal/logging"
	"mindvault/internal/permissions"
)

type stubSettings map[string]string

func (s stubSettings) GetString(key string) string { return s[key] }

func newTestFS(t *testing.T, level string) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	gate := permissions.NewGate(stubSettings{
		"permissions.level": level,
		"sandbox.dir":       dir,
	})
	return NewFS(gate, logging.NewEventLogger(nil, nil)), dir
}

func TestFS_WriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	fs, _ := newTestFS(t, "file-access")

	require.NoError(t, fs.WriteFile("notes/hello.md", []byte("hello")))
	data, err := fs.ReadFile("notes/hello.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFS_DeniedWhenSandboxed(t *testing.T) {
	t.Parallel()
	fs, _ := newTestFS(t, "sandboxed")

	_, err := fs.ReadFile("a.txt")
	require.Error(t, err)
	assert.True(t, permissions.Denied(err))

	err = fs.WriteFile("a.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, permissions.Denied(err))

	_, err = fs.ListDir(".")
	assert.True(t, permissions.Denied(err))
}

func TestFS_TraversalBlocked(t *testing.T) {
	t.Parallel()
	fs, _ := newTestFS(t, "file-access")

	for _, rel := range []string{"../escape.txt", "a/../../escape.txt", "/etc/passwd"} {
		_, err := fs.ReadFile(rel)
		require.Error(t, err, rel)
		assert.True(t, permissions.Denied(err), rel)
	}
}

func TestFS_ListExistsDelete(t *testing.T) {
	t.Parallel()
	fs, _ := newTestFS(t, "file-access")

	require.NoError(t, fs.EnsureDir("dir"))
	require.NoError(t, fs.WriteFile(filepath.Join("dir", "a.md"), []byte("a")))
	require.NoError(t, fs.WriteFile(filepath.Join("dir", "b.md"), []byte("bb")))

	entries, err := fs.ListDir("dir")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.md", entries[0].Name)
	assert.False(t, entries[0].IsDirectory)
	assert.Equal(t, int64(2), entries[1].Size)

	ok, err := fs.Exists("dir/a.md")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists("dir/missing.md")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Delete("dir/a.md"))
	ok, err = fs.Exists("dir/a.md")
	require.NoError(t, err)
	assert.False(t, ok)
}
