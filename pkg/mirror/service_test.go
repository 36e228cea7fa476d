package mirror

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ContentStore for pipeline tests.
type memStore struct {
	entries map[string]*Content
	puts    int
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*Content{}}
}

func (m *memStore) Get(resolvedURL string) (*Content, error) {
	if c, ok := m.entries[resolvedURL]; ok {
		return c, nil
	}
	return nil, errNotFound
}

func (m *memStore) Put(resolvedURL string, content *Content, _ time.Duration) error {
	m.entries[resolvedURL] = content
	m.puts++
	return nil
}

var errNotFound = assert.AnError

func hostOf(t *testing.T, serverURL string) string {
	t.Helper()
	return strings.TrimPrefix(serverURL, "http://")
}

func TestMirrorCacheHitSkipsFetch(t *testing.T) {
	fetches := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
	}))
	defer origin.Close()

	store := newMemStore()
	host := hostOf(t, origin.URL)
	cached := &Content{OriginalAddress: origin.URL + "/page", Status: 200, Data: []byte("cached")}
	store.entries["http://"+host+"/page"] = cached

	svc := NewService(store, NewFetcher(), time.Hour)
	got, err := svc.Mirror("cats-d8c4vu", host+"/page")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), got.Data)
	assert.Zero(t, fetches)
}

func TestMirrorMissFetchesRewritesAndStores(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><img src="/logo.png"></body></html>`))
	}))
	defer origin.Close()

	store := newMemStore()
	svc := NewService(store, NewFetcher(), time.Hour)
	host := hostOf(t, origin.URL)

	got, err := svc.Mirror("cats-d8c4vu", host+"/index.html")
	require.NoError(t, err)

	assert.Equal(t, 200, got.Status)
	assert.Contains(t, string(got.Data), `src="/cats-d8c4vu/`+host+`/logo.png"`)
	assert.Equal(t, "cats-d8c4vu/"+host+"/index.html", got.TranslatedAddress)
	assert.Equal(t, host, got.Host)
	assert.Equal(t, 1, store.puts)

	// Second request is served from the store.
	again, err := svc.Mirror("cats-d8c4vu", host+"/index.html")
	require.NoError(t, err)
	assert.Equal(t, got.Data, again.Data)
	assert.Equal(t, 1, store.puts)
}

func TestMirrorLeavesBinaryContentAlone(t *testing.T) {
	payload := []byte("\x89PNG http://example.com/raw-url-inside-binary")
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer origin.Close()

	svc := NewService(newMemStore(), NewFetcher(), time.Hour)
	got, err := svc.Mirror("cats-d8c4vu", hostOf(t, origin.URL)+"/img.png")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got.Data))
}

func TestMirrorRewritesCSS(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte(`@import '/base.css'; h1 { background: url(img/bg.png); }`))
	}))
	defer origin.Close()

	host := hostOf(t, origin.URL)
	svc := NewService(newMemStore(), NewFetcher(), time.Hour)
	got, err := svc.Mirror("cats-d8c4vu", host+"/css/site.css")
	require.NoError(t, err)
	css := string(got.Data)
	assert.Contains(t, css, "@import '/cats-d8c4vu/"+host+"/base.css'")
	assert.Contains(t, css, "url(/cats-d8c4vu/"+host+"/css/img/bg.png)")
}

func TestMirrorRedirectStoresUnderBothURLs(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
		case "/new":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>moved</html>"))
		}
	}))
	defer origin.Close()

	store := newMemStore()
	svc := NewService(store, NewFetcher(), time.Hour)
	host := hostOf(t, origin.URL)

	got, err := svc.Mirror("cats-d8c4vu", host+"/old")
	require.NoError(t, err)
	assert.Equal(t, origin.URL+"/new", got.OriginalAddress)
	assert.Equal(t, "cats-d8c4vu/"+host+"/new", got.TranslatedAddress)

	_, resolvedStored := store.entries["http://"+host+"/new"]
	_, requestedStored := store.entries["http://"+host+"/old"]
	assert.True(t, resolvedStored)
	assert.True(t, requestedStored)
}

func TestMirrorRewritesSurfacedLocationHeader(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always redirect: the fetcher gives up after maxRedirects
		// and surfaces the last 3xx.
		http.Redirect(w, r, "/bounce", http.StatusFound)
	}))
	defer origin.Close()

	host := hostOf(t, origin.URL)
	svc := NewService(newMemStore(), NewFetcher(), time.Hour)
	got, err := svc.Mirror("cats-d8c4vu", host+"/bounce")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, got.Status)
	assert.Equal(t, "/cats-d8c4vu/"+host+"/bounce", got.Headers["location"])
}

func TestMirrorTruncatesOversizedContent(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxContentSize+512)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(big)
	}))
	defer origin.Close()

	svc := NewService(newMemStore(), NewFetcher(), time.Hour)
	got, err := svc.Mirror("cats-d8c4vu", hostOf(t, origin.URL)+"/big.txt")
	require.NoError(t, err)
	assert.Len(t, got.Data, MaxContentSize)
}

func TestMirrorFetchFailure(t *testing.T) {
	svc := NewService(newMemStore(), NewFetcher(), time.Hour)
	_, err := svc.Mirror("cats-d8c4vu", "127.0.0.1:1/down")
	assert.Error(t, err)
}
