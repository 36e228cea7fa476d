// Package rewrite translates URL references embedded in mirrored
// HTML/CSS so they route back through the proxy's fiddle prefix.
//
// References are found in three syntactic contexts: tag attributes
// (src, href, action, background, and bare url= as used by meta
// refresh), CSS @import statements, and CSS url() calls (which also
// covers inline style attributes). Each reference is classified by
// shape and reformatted; quoting is preserved as found.
package rewrite

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Context is the target of a rewrite pass: the fiddle prefix to root
// references under, and where the content being rewritten was fetched
// from. It is built once per page and never mutated.
type Context struct {
	// FiddleID is the session identifier, e.g. "cats-d8c4vu".
	FiddleID string
	// Host is the origin host of the accessed page.
	Host string
	// Dir is the directory component of the accessed path, with
	// leading and trailing slash. Same-directory and traversal
	// references resolve against it.
	Dir string
}

// NewContext derives a rewrite context from a fiddle id and the
// absolute URL the content was fetched from.
func NewContext(fiddleID, accessedURL string) Context {
	ctx := Context{FiddleID: fiddleID, Dir: "/"}
	u, err := url.Parse(accessedURL)
	if err != nil {
		return ctx
	}
	ctx.Host = u.Host
	dir := u.Path
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir)
	}
	if dir == "" || dir == "." {
		dir = "/"
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	ctx.Dir = dir
	return ctx
}

// Prefix returns the proxy path prefix all rewritten references are
// rooted under.
func (c Context) Prefix() string {
	return "/" + c.FiddleID + "/"
}

// contextHead matches the start of a rewritable syntactic context.
// The reference token itself is consumed by takeToken, not the regex,
// so capture-group arithmetic never spans context and URL.
var contextHead = regexp.MustCompile(`(?i)\b(?:src|href|action|background|url)[ \t]*=[ \t]*|@import[ \t]+|\burl\(`)

// Transform rewrites every URL reference in content so it is rooted
// under ctx.Prefix(). It is pure and idempotent: references already
// carrying the prefix are left alone, so a second pass is a no-op.
func Transform(content string, ctx Context) string {
	var b strings.Builder
	b.Grow(len(content) + len(content)/4)

	rest := content
	for {
		loc := contextHead.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			break
		}
		head := rest[loc[0]:loc[1]]
		b.WriteString(rest[:loc[1]])
		rest = rest[loc[1]:]

		// "@import url(...)" is handled by the url() context on the
		// next iteration.
		if isImportHead(head) && startsWithURLCall(rest) {
			continue
		}

		quote, token, n := takeToken(rest)
		b.WriteString(quote)
		b.WriteString(Reference(token, ctx))
		rest = rest[n:]
	}
	return b.String()
}

func isImportHead(head string) bool {
	return strings.HasPrefix(strings.ToLower(head), "@import")
}

func startsWithURLCall(s string) bool {
	return len(s) >= 4 && strings.EqualFold(s[:4], "url(")
}

// takeToken consumes an optional quote character and the URL token
// following a context head. Tokens never cross quotes, whitespace,
// tag closers, or a closing parenthesis, so matching cannot run past
// a tag or statement boundary.
func takeToken(s string) (quote, token string, n int) {
	i := 0
	if i < len(s) && (s[i] == '"' || s[i] == '\'') {
		quote = s[i : i+1]
		i++
	}
	start := i
	for i < len(s) && !isTerminator(s[i]) {
		i++
	}
	return quote, s[start:i], i
}

func isTerminator(c byte) bool {
	switch c {
	case '"', '\'', '>', '<', ' ', '\t', '\n', '\r', ')':
		return true
	}
	return false
}

// Reference rewrites a single URL reference. Classification order is
// most specific first so no shape is matched twice:
//
//  1. data: and other non-http schemes, and fragment-only refs, pass
//     through untouched.
//  2. references already under the proxy prefix pass through.
//  3. absolute (scheme://host/... or protocol-relative //host/...)
//     become /{fiddle}/{host}{path}.
//  4. root-relative /path becomes /{fiddle}/{accessedHost}/path.
//  5. anything else resolves against the accessed directory with
//     ./.. collapsed, then formats as root-relative.
//
// Query and fragment suffixes are carried verbatim; the scheme is
// never encoded in the result.
func Reference(ref string, ctx Context) string {
	if ref == "" {
		return ref
	}
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"),
		strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(ref, "#"):
		return ref
	}
	if strings.HasPrefix(ref, ctx.Prefix()) {
		return ref
	}

	switch {
	case strings.HasPrefix(lower, "http://"):
		return formatAbsolute(ref[len("http://"):], ctx)
	case strings.HasPrefix(lower, "https://"):
		return formatAbsolute(ref[len("https://"):], ctx)
	case strings.HasPrefix(ref, "//"):
		hostPart := ref[2:]
		if end := strings.IndexAny(hostPart, "/?#"); end >= 0 {
			hostPart = hostPart[:end]
		}
		// A protocol-relative reference needs something that looks
		// like a hostname; "//path//to//x" is a sloppy root-relative
		// path with doubled slashes.
		if strings.ContainsAny(hostPart, ".:") {
			return formatAbsolute(ref[2:], ctx)
		}
		return formatRootRelative(ref, ctx)
	case strings.HasPrefix(ref, "/"):
		return formatRootRelative(ref, ctx)
	}
	return formatRelative(ref, ctx)
}

func formatAbsolute(hostAndPath string, ctx Context) string {
	host := hostAndPath
	rest := ""
	if end := strings.IndexAny(hostAndPath, "/?#"); end >= 0 {
		host = hostAndPath[:end]
		rest = hostAndPath[end:]
	}
	p, suffix := splitSuffix(rest)
	return ctx.Prefix() + host + cleanPath(p) + suffix
}

func formatRootRelative(ref string, ctx Context) string {
	p, suffix := splitSuffix(ref)
	return ctx.Prefix() + ctx.Host + cleanPath(p) + suffix
}

func formatRelative(ref string, ctx Context) string {
	p, suffix := splitSuffix(ref)
	if p == "" {
		// Query- or fragment-only reference: append to the accessed
		// directory as-is.
		return ctx.Prefix() + ctx.Host + ctx.Dir + suffix
	}
	resolved := path.Join(ctx.Dir, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(resolved, "/") {
		resolved += "/"
	}
	return ctx.Prefix() + ctx.Host + resolved + suffix
}

// splitSuffix separates the path portion of a reference from its
// query/fragment suffix, which is preserved verbatim.
func splitSuffix(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

// cleanPath collapses duplicate slashes and dot segments while
// keeping a trailing slash when the input had one.
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}
