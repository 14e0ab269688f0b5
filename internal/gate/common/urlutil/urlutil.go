package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Parsed holds the normalized pieces of a navigation URL used on the
// matching hot path.
type Parsed struct {
	Scheme  string
	RawHost string // lowercased host with any port stripped, "www." kept
	Host    string // RawHost with a leading "www." removed
	Path    string // lowercased path, may be empty
}

// Parse splits a raw URL into normalized host and path components.
// Scheme-less inputs ("reddit.com/r/golang") are accepted. Returns
// ok=false for inputs that cannot yield a usable host; matching fails
// closed on those.
func Parse(rawURL string) (Parsed, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return Parsed{}, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		// Bare host or host/path form without a scheme.
		u, err = url.Parse("http://" + s)
		if err != nil || u.Host == "" {
			return Parsed{}, false
		}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Parsed{}, false
	}
	return Parsed{
		Scheme:  strings.ToLower(u.Scheme),
		RawHost: host,
		Host:    StripWWW(host),
		Path:    strings.ToLower(u.Path),
	}, true
}

// StripWWW removes a single leading "www." label.
func StripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// IsInternal reports whether the URL belongs to the platform itself
// (extension pages, devtools, about:blank and friends). Internal URLs
// are never subject to enforcement.
func IsInternal(rawURL string) bool {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if s == "" {
		return true
	}
	for _, scheme := range internalSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

var internalSchemes = []string{
	"about:",
	"chrome:",
	"chrome-extension:",
	"moz-extension:",
	"edge:",
	"devtools:",
	"view-source:",
	"haltgate:",
}

// ApexDomain returns the effective TLD+1 for a host, falling back to
// the input when the public suffix list cannot resolve it.
func ApexDomain(host string) string {
	apex, _ := ResolveApex(host)
	return apex
}

// ResolveApex returns the effective TLD+1 for a host. ok is false when
// the public suffix list cannot reduce the host, which includes hosts
// that are themselves a public suffix (github.io, co.uk); callers that
// key data structures by apex must not anchor such hosts, because a
// subdomain of a public suffix resolves to a different apex than the
// suffix itself.
func ResolveApex(host string) (apex string, ok bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, false
	}
	return apex, true
}
