package match

import "github.com/haltgate/haltgate/internal/gate/domain"

// Evaluate runs a site's ordered rule list against a URL and reports
// whether the navigation is blocked.
//
// Semantics: rules are scanned in declaration order. The first allow
// rule that matches wins outright and no later rule can re-block. A
// matching block rule sets the blocked flag but scanning continues, so
// a later allow rule can still override it. Disabled sites never block.
func Evaluate(rawURL string, site domain.Site) bool {
	if !site.Enabled {
		return false
	}
	return EvaluateRules(rawURL, site.Rules)
}

// EvaluateRules is Evaluate without the enabled gate, for callers that
// need raw rule semantics (e.g. finding tabs still on a site that was
// just disabled).
func EvaluateRules(rawURL string, rules []domain.Rule) bool {
	blocked := false
	for _, rule := range rules {
		if !Matches(rawURL, rule.Pattern) {
			continue
		}
		if rule.Allow {
			return false
		}
		blocked = true
	}
	return blocked
}

// FindMatchingSite returns the first site in list order whose rules
// block the URL. First match wins; later sites are never consulted.
func FindMatchingSite(rawURL string, sites []domain.Site) (domain.Site, bool) {
	for _, site := range sites {
		if Evaluate(rawURL, site) {
			return site, true
		}
	}
	return domain.Site{}, false
}
