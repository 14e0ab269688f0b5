package domain

import (
	"fmt"
	"strings"
)

// Rule is a single pattern with an allow/block polarity. Rules are
// evaluated in declaration order; an allow rule that matches ends the
// evaluation immediately, a block rule that matches can still be
// overridden by a later allow rule in the same list.
type Rule struct {
	Pattern string `json:"pattern"` // host or host/path spec, may contain * wildcards
	Allow   bool   `json:"allow"`
}

// NewRule constructs a Rule and validates its pattern.
func NewRule(pattern string, allow bool) (Rule, error) {
	r := Rule{Pattern: strings.TrimSpace(pattern), Allow: allow}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule for a usable pattern.
func (r Rule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("rule pattern must not be empty")
	}
	if strings.ContainsAny(r.Pattern, " \t") {
		return fmt.Errorf("rule pattern must not contain whitespace: %q", r.Pattern)
	}
	return nil
}

// HostPart returns the host portion of the pattern (everything before
// the first slash) and the path portion (everything after, empty when
// the pattern is host-only).
func (r Rule) HostPart() (host, path string) {
	if i := strings.IndexByte(r.Pattern, '/'); i >= 0 {
		return r.Pattern[:i], r.Pattern[i:]
	}
	return r.Pattern, ""
}
