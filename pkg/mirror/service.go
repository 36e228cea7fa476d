// Package mirror ties fetch, rewrite, and cache together into the
// per-request pipeline behind the proxy handler.
package mirror

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/lee101/webfiddle/pkg/rewrite"
)

// MaxContentSize caps stored bodies. Larger content is truncated
// before caching; the request still succeeds.
const MaxContentSize = 1 << 20

// HTTPPrefix is the scheme prepended to translated addresses when
// fetching. The proxy namespace is scheme-stripped, so everything is
// requested over plain http first and upgraded by origin redirects.
const HTTPPrefix = "http://"

// ContentStore is the cache the pipeline reads and writes. It is
// best-effort: failures are logged and the request proceeds on the
// freshly fetched content.
type ContentStore interface {
	Get(resolvedURL string) (*Content, error)
	Put(resolvedURL string, content *Content, ttl time.Duration) error
}

// Service runs the fetch, rewrite, cache pipeline.
type Service struct {
	Store   ContentStore
	Fetcher *Fetcher
	TTL     time.Duration
}

func NewService(store ContentStore, fetcher *Fetcher, ttl time.Duration) *Service {
	return &Service{Store: store, Fetcher: fetcher, TTL: ttl}
}

// transformedContentTypes lists origin content types whose bodies get
// URL rewriting. Everything else passes through byte-for-byte.
var transformedContentTypes = []string{
	"text/html",
	"text/css",
}

// Mirror returns the mirrored content for translatedAddress (the
// origin host and path, without scheme) rewritten under fiddleID.
// Cache hits are served as-is; misses run the fetch and rewrite
// pipeline and populate the cache under both the requested and the
// redirect-resolved URL.
func (s *Service) Mirror(fiddleID, translatedAddress string) (*Content, error) {
	mirroredURL := HTTPPrefix + translatedAddress

	content, err := s.Store.Get(mirroredURL)
	if err == nil {
		return content, nil
	}
	if os.Getenv("LOG_URLS") == "true" {
		log.Printf("INFO: cache miss, fetching %s", mirroredURL)
	}

	res, err := s.Fetcher.Fetch(mirroredURL)
	if err != nil {
		return nil, err
	}

	ctx := rewrite.NewContext(fiddleID, res.ResolvedURL)
	body := res.Body
	if isTransformable(res.Headers) {
		body = []byte(rewrite.Transform(string(body), ctx))
	}
	if loc, ok := res.Headers["location"]; ok {
		res.Headers["location"] = rewrite.Reference(loc, ctx)
	}
	if len(body) > MaxContentSize {
		log.Printf("WARN: content for %s exceeds %d bytes; truncating", res.ResolvedURL, MaxContentSize)
		body = body[:MaxContentSize]
	}

	content = &Content{
		OriginalAddress:   res.ResolvedURL,
		TranslatedAddress: fiddleID + "/" + stripScheme(res.ResolvedURL),
		Status:            res.Status,
		Headers:           res.Headers,
		Data:              body,
		FiddleID:          fiddleID,
		Host:              ctx.Host,
	}

	if err := s.Store.Put(res.ResolvedURL, content, s.TTL); err != nil {
		log.Printf("WARN: cache write failed for %s: %v", res.ResolvedURL, err)
	} else if res.ResolvedURL != mirroredURL {
		// Alias the requested URL to the redirect target so repeat
		// requests hit without re-fetching.
		if err := s.Store.Put(mirroredURL, content, s.TTL); err != nil {
			log.Printf("WARN: cache write failed for %s: %v", mirroredURL, err)
		}
	}
	return content, nil
}

func isTransformable(headers map[string]string) bool {
	for _, ct := range transformedContentTypes {
		if hasContentType(headers, ct) {
			return true
		}
	}
	return false
}

func stripScheme(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[i+len("://"):]
	}
	return url
}
