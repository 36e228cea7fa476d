package mirror

import "strings"

// Content is one mirrored fetch result: the origin response after
// header normalization and, for HTML/CSS, URL rewriting. Instances
// are read-only once built; the cache hands back copies of the same
// value until expiry.
type Content struct {
	// OriginalAddress is the absolute URL that was fetched, after
	// redirect following.
	OriginalAddress string
	// TranslatedAddress is the path-relative form under the proxy's
	// URL space, e.g. "cats-d8c4vu/example.com/index.html".
	TranslatedAddress string
	// Status is the origin HTTP status code.
	Status int
	// Headers maps lowercase header names to values, hop-by-hop and
	// security headers already stripped.
	Headers map[string]string
	// Data is the response body, post-rewrite for HTML/CSS.
	Data []byte
	// FiddleID and Host record the rewrite context the body was
	// translated under.
	FiddleID string
	Host     string
}

// IsHTML reports whether the mirrored body is an HTML document, which
// controls overlay injection.
func (c *Content) IsHTML() bool {
	return hasContentType(c.Headers, "text/html")
}

func hasContentType(headers map[string]string, prefix string) bool {
	// Prefix match, because the value may carry a charset suffix.
	return strings.HasPrefix(headers["content-type"], prefix)
}
