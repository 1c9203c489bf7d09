package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestL3(t *testing.T) *l3Store {
	t.Helper()
	s, err := newL3Store(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestL3Store_SetGet(t *testing.T) {
	s := newTestL3(t)
	e := entryFor("k1", []byte("v1"))
	require.NoError(t, s.Set(e))

	got, ok := s.Get("k1", nil)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got.Value)
}

func TestL3Store_MissingKey(t *testing.T) {
	s := newTestL3(t)
	_, ok := s.Get("nope", nil)
	assert.False(t, ok)
}

func TestL3Store_ExpiredEntryRemovedOnRead(t *testing.T) {
	s := newTestL3(t)
	e := &Entry{Key: "k", Value: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)}
	require.NoError(t, s.Set(e))

	_, ok := s.Get("k", nil)
	assert.False(t, ok)
	assert.False(t, s.Exists("k"))
}

func TestL3Store_TagFilterOnRead(t *testing.T) {
	s := newTestL3(t)
	require.NoError(t, s.Set(entryFor("k", []byte("v"), "a", "b")))

	_, ok := s.Get("k", []string{"a"})
	assert.True(t, ok)
	_, ok = s.Get("k", []string{"z"})
	assert.False(t, ok)
}

func TestL3Store_DeleteExists(t *testing.T) {
	s := newTestL3(t)
	require.NoError(t, s.Set(entryFor("k", []byte("v"))))
	assert.True(t, s.Exists("k"))
	assert.True(t, s.Delete("k"))
	assert.False(t, s.Exists("k"))
	assert.False(t, s.Delete("k"))
}

func TestL3Store_Clear(t *testing.T) {
	s := newTestL3(t)
	require.NoError(t, s.Set(entryFor("a", []byte("1"))))
	require.NoError(t, s.Set(entryFor("b", []byte("2"))))

	require.NoError(t, s.Clear())
	assert.False(t, s.Exists("a"))
	assert.False(t, s.Exists("b"))
}

func TestL3Store_FlushByTags(t *testing.T) {
	s := newTestL3(t)
	require.NoError(t, s.Set(entryFor("a", []byte("1"), "u")))
	require.NoError(t, s.Set(entryFor("b", []byte("2"), "u", "v")))
	require.NoError(t, s.Set(entryFor("c", []byte("3"), "w")))

	removed := s.FlushByTags([]string{"u"})
	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	assert.False(t, s.Exists("a"))
	assert.False(t, s.Exists("b"))
	assert.True(t, s.Exists("c"))
}

// Keys with filesystem-hostile characters still round-trip since they are
// hashed to a filename rather than used directly.
func TestL3Store_KeyHashingHandlesArbitraryKeys(t *testing.T) {
	s := newTestL3(t)
	key := "../../etc/passwd:weird/key"
	require.NoError(t, s.Set(entryFor(key, []byte("v"))))

	got, ok := s.Get(key, nil)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got.Value)
}
