package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestPutGetDelete(t *testing.T) {
	store := newTestStore(t)
	data := []byte("%PDF-1.4 pretend document")

	handle, err := store.Put(data)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	got, err := store.Get(handle)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(handle))

	_, err = store.Get(handle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDistinctHandlesPerPut(t *testing.T) {
	store := newTestStore(t)

	h1, err := store.Put([]byte("same content"))
	require.NoError(t, err)
	h2, err := store.Put([]byte("same content"))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestGetUnknownHandle(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("8f14e45f-ceea-467f-a0e6-4c3b1f2a9d11")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUnknownHandle(t *testing.T) {
	store := newTestStore(t)

	err := store.Delete("8f14e45f-ceea-467f-a0e6-4c3b1f2a9d11")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectsPathTraversalHandles(t *testing.T) {
	store := newTestStore(t)

	for _, handle := range []string{
		"",
		"../escape",
		"..",
		"a/b",
		`a\b`,
		"/etc/passwd",
	} {
		_, err := store.Get(handle)
		assert.ErrorIs(t, err, ErrInvalidHandle, "handle %q", handle)

		err = store.Delete(handle)
		assert.ErrorIs(t, err, ErrInvalidHandle, "handle %q", handle)
	}
}
