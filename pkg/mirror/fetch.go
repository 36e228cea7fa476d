package mirror

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// UserAgentToken identifies the proxy's own outbound requests, so
// inbound requests carrying it can be rejected before the proxy
// mirrors itself.
const UserAgentToken = "WebFiddle-Mirror"

// maxRedirects bounds redirect following; the chain is resolved
// internally and the final URL is what gets cached and rewritten
// against.
const maxRedirects = 3

// ignoreHeaders are dropped from origin responses: hop-by-hop and
// caching headers the proxy replaces, plus browser security headers
// that would block framing and script injection (the proxy issues
// its own content-security-policy).
var ignoreHeaders = map[string]struct{}{
	"set-cookie":    {},
	"expires":       {},
	"cache-control": {},

	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
	"content-length":      {},

	"x-frame-options":                     {},
	"content-security-policy":             {},
	"content-security-policy-report-only": {},
	"x-xss-protection":                    {},
}

// FetchResult is a normalized origin response.
type FetchResult struct {
	Status int
	// Headers holds lowercase header names with ignoreHeaders
	// stripped.
	Headers map[string]string
	Body    []byte
	// ResolvedURL is the final URL after redirect following; cache
	// keys and rewrite contexts use it, never the requested URL.
	ResolvedURL string
}

// Fetcher performs outbound requests to mirrored origins.
type Fetcher struct {
	UserAgent    string
	ForwardedFor string
	client       *http.Client
}

// NewFetcher builds a Fetcher configured from the environment:
// USER_AGENT, X_FORWARDED_FOR, and HTTP_TIMEOUT (seconds).
func NewFetcher() *Fetcher {
	timeout := 15
	if timeoutStr := os.Getenv("HTTP_TIMEOUT"); timeoutStr != "" {
		timeout, _ = strconv.Atoi(timeoutStr)
	}

	return &Fetcher{
		UserAgent:    getenv("USER_AGENT", "Mozilla/5.0 (compatible; "+UserAgentToken+"/1.0)"),
		ForwardedFor: getenv("X_FORWARDED_FOR", "66.249.66.1"),
		client: &http.Client{
			Timeout: time.Second * time.Duration(timeout),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch retrieves url, following up to maxRedirects redirects, and
// returns the normalized response. Transport failures return an
// error; HTTP error statuses do not.
func (f *Fetcher) Fetch(url string) (*FetchResult, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("X-Forwarded-For", f.ForwardedFor)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching site: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		adjusted := strings.ToLower(key)
		if _, ignored := ignoreHeaders[adjusted]; ignored {
			continue
		}
		if len(values) > 0 {
			headers[adjusted] = values[0]
		}
	}

	return &FetchResult{
		Status:      resp.StatusCode,
		Headers:     headers,
		Body:        body,
		ResolvedURL: resp.Request.URL.String(),
	}, nil
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
