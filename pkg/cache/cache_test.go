package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lee101/webfiddle/pkg/mirror"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/cache")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleContent() *mirror.Content {
	return &mirror.Content{
		OriginalAddress:   "http://example.com/page.html",
		TranslatedAddress: "cats-d8c4vu/example.com/page.html",
		Status:            200,
		Headers:           map[string]string{"content-type": "text/html"},
		Data:              []byte("<html>hi</html>"),
		FiddleID:          "cats-d8c4vu",
		Host:              "example.com",
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put("http://example.com/page.html", sampleContent(), time.Hour))

	got, err := s.Get("http://example.com/page.html")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/page.html", got.OriginalAddress)
	assert.Equal(t, []byte("<html>hi</html>"), got.Data)
	assert.Equal(t, "text/html", got.Headers["content-type"])
}

func TestGetMiss(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("http://example.com/never-stored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredEntryIsMissAndDeleted(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put("http://example.com/old", sampleContent(), -time.Second))

	_, err := s.Get("http://example.com/old")
	assert.ErrorIs(t, err, ErrNotFound)

	// The lazy eviction deleted the record, so the raw key is gone.
	_, err = s.db.Get([]byte(Key("http://example.com/old")), nil)
	assert.Error(t, err)
}

func TestPutIsUpsert(t *testing.T) {
	s := openTestStore(t)

	first := sampleContent()
	require.NoError(t, s.Put("http://example.com/x", first, time.Hour))

	second := sampleContent()
	second.Data = []byte("updated")
	require.NoError(t, s.Put("http://example.com/x", second, time.Hour))

	got, err := s.Get("http://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), got.Data)
}

func TestKeyShape(t *testing.T) {
	k := Key("http://example.com/page.html")
	assert.True(t, len(k) == len("hash_")+64)
	assert.Equal(t, "hash_", k[:5])
	assert.NotEqual(t, k, Key("http://example.com/other.html"))
}
