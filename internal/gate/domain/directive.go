package domain

// DirectiveAction says what the platform does when a directive's
// pattern matches a navigation.
type DirectiveAction string

const (
	// ActionRedirect sends the navigation to RedirectURL.
	ActionRedirect DirectiveAction = "redirect"
	// ActionAllow exempts the navigation from lower-priority redirects.
	ActionAllow DirectiveAction = "allow"
)

// Directive is one compiled match/redirect entry for the declarative
// enforcement backend. Once a batch is installed the platform owns
// matching and redirecting; this code only compiles and replaces
// batches wholesale.
type Directive struct {
	ID       int             `json:"id"`       // unique within a batch
	Priority int             `json:"priority"` // higher value wins
	Action   DirectiveAction `json:"action"`

	// Regex is an anchored, case-insensitive pattern over the full
	// navigation URL.
	Regex string `json:"regex"`

	// RedirectURL is the blocked-page locator for redirect directives.
	// "\0" is substituted by the platform with the matched URL.
	RedirectURL string `json:"redirectUrl,omitempty"`

	SiteID string `json:"siteId"`
}

// Tab is an open browser tab as reported by the tab capability.
type Tab struct {
	ID  int
	URL string
}
