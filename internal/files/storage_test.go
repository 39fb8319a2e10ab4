package files

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SaveReadDelete(t *testing.T) {
	storage, err := New(t.TempDir() + "/uploads")
	require.NoError(t, err)

	path, err := storage.Save([]byte("hello"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", filepath.Base(path))

	data, err := storage.Read("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, storage.Delete("notes.txt"))
	_, err = storage.Read("notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_DeleteMissingIsNoop(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, storage.Delete("never-saved.txt"))
}

func TestStorage_StripsDirectoryComponents(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	require.NoError(t, err)

	path, err := storage.Save([]byte("x"), "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwd"), path)
}
