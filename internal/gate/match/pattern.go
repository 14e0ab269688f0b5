// Package match implements the rule pattern matcher and the ordered
// rule evaluator. Everything here is pure and fails closed: malformed
// URLs or patterns produce a non-match, never an error or panic.
package match

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haltgate/haltgate/internal/gate/common/urlutil"
)

// reCache memoizes compiled wildcard patterns. Pattern sets are small
// and stable, so a modest bound is plenty.
var reCache, _ = lru.New[string, *regexp.Regexp](512)

// Matches reports whether rawURL matches pattern.
//
// Pattern forms:
//   - "domain.com"           exact host (www. tolerated on either side)
//   - "*.domain.com"         the domain and any subdomain
//   - "dom*.com"             glob over the host, * matches any run
//   - "domain.com/path"      host rules above, plus a path constraint;
//     a path without * matches exactly or as a
//     strict sub-path prefix
func Matches(rawURL, pattern string) bool {
	patHost, patPath, ok := splitPattern(pattern)
	if !ok {
		return false
	}
	u, ok := urlutil.Parse(rawURL)
	if !ok {
		return false
	}
	if !hostMatches(u, patHost) {
		return false
	}
	if patPath == "" {
		return true
	}
	return pathMatches(u.Path, patPath)
}

// splitPattern normalizes a raw pattern into a lowercased host part
// (scheme and leading www. stripped) and an optional path part.
func splitPattern(pattern string) (host, path string, ok bool) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	if p == "" {
		return "", "", false
	}
	if i := strings.IndexByte(p, '/'); i >= 0 {
		host, path = p[:i], p[i:]
	} else {
		host = p
	}
	host = urlutil.StripWWW(host)
	if host == "" {
		return "", "", false
	}
	return host, path, true
}

// hostMatches applies the host portion of a pattern against both the
// normalized (www.-stripped) and raw hostname of the parsed URL.
func hostMatches(u urlutil.Parsed, patHost string) bool {
	switch {
	case strings.HasPrefix(patHost, "*."):
		// Apex-inclusive suffix match: "*.x.com" hits x.com and a.x.com.
		apex := patHost[2:]
		return u.Host == apex || strings.HasSuffix(u.Host, "."+apex)
	case strings.ContainsRune(patHost, '*'):
		re := wildcardRegexp(patHost)
		if re == nil {
			return false
		}
		// Raw host fallback catches www.-prefixed exact forms the
		// normalization stripped.
		return re.MatchString(u.Host) || re.MatchString(u.RawHost)
	default:
		return u.Host == patHost || u.RawHost == patHost || u.RawHost == "www."+patHost
	}
}

// pathMatches applies the path portion of a pattern. Both sides are
// lowercased already; a single trailing slash is insignificant.
func pathMatches(path, patPath string) bool {
	if strings.ContainsRune(patPath, '*') {
		re := wildcardRegexp(patPath)
		return re != nil && re.MatchString(path)
	}
	p := strings.TrimSuffix(path, "/")
	pp := strings.TrimSuffix(patPath, "/")
	if p == pp {
		return true
	}
	return strings.HasPrefix(p, pp+"/")
}

// wildcardRegexp compiles a glob into an anchored, case-insensitive
// regexp: every metacharacter except * is escaped, * becomes ".*".
// Returns nil when the result will not compile; callers fail closed.
func wildcardRegexp(glob string) *regexp.Regexp {
	if re, ok := reCache.Get(glob); ok {
		return re
	}
	expr := "^(?i:" + strings.ReplaceAll(regexp.QuoteMeta(glob), `\*`, ".*") + ")$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	reCache.Add(glob, re)
	return re
}
