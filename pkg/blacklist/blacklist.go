// Package blacklist holds the static denylist of known-abused mirror
// targets, consulted before any outbound fetch.
package blacklist

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultTargets are mirror targets reported for phishing abuse.
var defaultTargets = []string{
	// eBay credential phishing
	"www.ebay.com/myb/SavedSellers",
	"signin.ebay.com/ws/eBayISAPI.dll/",
	"cgi4.ebay.com/ws",
	"my.ebay.com/ws",
	"reg.ebay.com/reg/PartialReg",
	"ocsnext.ebay.com/ocs/cuhome",
	"pages.ebay.com/sitemap.html",
	"cgi4.ebay.com/ws/eBayISAPI.dll?ChangeEmail",
	"my.ebay.com/ws/eBayISAPI.dll?MyeBay",
	"www.ebay.com/myb/Summary",

	// Facebook login phishing
	"www.facebook.com",
	"www.facebook.com/login",

	// LinkedIn profile phishing
	"www.linkedin.com/in",
	"www.linkedin.com",
}

// List is a set of denied targets. Membership is checked against the
// full requested target and against its domain part, so a blocked
// domain blocks every path under it.
type List struct {
	targets map[string]struct{}
}

// New returns the built-in denylist.
func New() *List {
	l := &List{targets: make(map[string]struct{}, len(defaultTargets))}
	for _, t := range defaultTargets {
		l.add(t)
	}
	return l
}

// Load returns the built-in denylist merged with extra targets from a
// yaml file (a plain sequence of strings).
func Load(path string) (*List, error) {
	l := New()
	if path == "" {
		return l, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist file '%s': %w", path, err)
	}
	var extra []string
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("syntax error in blacklist file '%s': %w", path, err)
	}
	for _, t := range extra {
		l.add(t)
	}
	return l, nil
}

func (l *List) add(target string) {
	l.targets[normalize(target)] = struct{}{}
}

// Contains reports whether target (host plus optional path) is
// denied, either exactly or by its domain.
func (l *List) Contains(target string) bool {
	t := normalize(target)
	if _, ok := l.targets[t]; ok {
		return true
	}
	if i := strings.IndexAny(t, "/?"); i >= 0 {
		if _, ok := l.targets[t[:i]]; ok {
			return true
		}
	}
	return false
}

func normalize(target string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(target)), "/")
}
