package placement

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Position is where a fragment lands relative to its anchor node.
type Position string

const (
	InsideStart  Position = "INSIDE_START"
	InsideEnd    Position = "INSIDE_END"
	After        Position = "AFTER"
	Before       Position = "BEFORE"
	StickyFooter Position = "STICKY_FOOTER"
)

// ParsePosition normalises a relative value coming from the platform.
// Older configs send lower-case values. The second return is false for
// values this build does not know; the Position is still returned so
// callers can log it.
func ParsePosition(s string) (Position, bool) {
	p := Position(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case InsideStart, InsideEnd, After, Before, StickyFooter:
		return p, true
	}
	return p, false
}

// AdType selects the targeting substitution applied to a fragment.
type AdType string

const (
	AdTypeDefault        AdType = "display_default"
	AdTypeOutstreamVideo AdType = "outstream_video"
)

// RelativeSelector pairs a CSS selector with an insertion position.
type RelativeSelector struct {
	Selector string   `json:"selector"`
	Relative Position `json:"relative"`
}

// Placement is the merged view of one slot: the ad-rule config fields plus
// whatever payload the fragment family carried (HTML only, or HTML+CSS).
type Placement struct {
	Key               string             `json:"key"`
	RelativeSelectors []RelativeSelector `json:"relativeSelectors"`
	Limit             int                `json:"limit"`
	Enabled           bool               `json:"enabled"`
	AdType            AdType             `json:"adType,omitempty"`
	PrefillDisabled   bool               `json:"prefillDisabled,omitempty"`
	ConnatixID        string             `json:"connatixId,omitempty"`
	HTML              string             `json:"html,omitempty"`
	CSS               string             `json:"css,omitempty"`

	// Raw keeps the original entry for fields this package does not model.
	Raw gjson.Result `json:"-"`
}

// Usable reports whether the placement can produce any insertion at all.
func (p Placement) Usable() bool {
	return p.Enabled && p.Limit > 0 && len(p.RelativeSelectors) > 0
}

// Component is the facet of the targeting context a rule tests.
type Component string

const (
	ComponentPath     Component = "PATH"
	ComponentURL      Component = "URL"
	ComponentTag      Component = "TAG"
	ComponentCategory Component = "CATEGORY"
)

// Comparator is the string test a rule applies.
type Comparator string

const (
	Contains       Comparator = "CONTAINS"
	StartsWith     Comparator = "STARTS_WITH"
	ExactlyMatches Comparator = "EXACTLY_MATCHES"
)

// AdRule blocks some or all placements when its condition holds.
// An empty PlacementKeys list means every placement.
type AdRule struct {
	Enabled       bool       `json:"enabled"`
	Component     Component  `json:"component"`
	Comparator    Comparator `json:"comparator"`
	Value         string     `json:"value"`
	PlacementKeys []string   `json:"placementKeys"`
}
