// Package placement holds the typed views over the placement configuration
// blobs delivered by the remote platform.
//
// Three families are refreshed together but stored independently: the ad
// rules config (selectors, limits, blocking rules), the AMP fragment config
// and the prefill fragment config. They are correlated only by placement key
// at read time, so any lookup across families must tolerate a missing key.
//
// Parsing never fails. Empty, absent or malformed input yields an empty
// configuration.
package placement

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Keyed maps placement keys to placements, keeping the order in which keys
// first appeared in the blob. A duplicate key overwrites the earlier entry.
type Keyed struct {
	ForPlacement map[string]Placement
	Order        []string
	Raw          []byte
}

// ParseKeyed reduces the "placements" array of raw into a Keyed map.
func ParseKeyed(raw []byte) Keyed {
	k := Keyed{ForPlacement: map[string]Placement{}}
	root, ok := parseRoot(raw)
	if !ok {
		return k
	}
	k.Raw = raw
	eachElement(root.Get("placements"), func(v gjson.Result) {
		p := parsePlacement(v)
		if p.Key == "" {
			return
		}
		if _, seen := k.ForPlacement[p.Key]; !seen {
			k.Order = append(k.Order, p.Key)
		}
		k.ForPlacement[p.Key] = p
	})
	return k
}

// Get returns the placement stored under key.
func (k Keyed) Get(key string) (Placement, bool) {
	p, ok := k.ForPlacement[key]
	return p, ok
}

// Len returns the number of distinct keys.
func (k Keyed) Len() int { return len(k.Order) }

// Placements returns the placements in iteration order.
func (k Keyed) Placements() []Placement {
	out := make([]Placement, 0, len(k.Order))
	for _, key := range k.Order {
		out = append(out, k.ForPlacement[key])
	}
	return out
}

// First returns the first placement of the blob, if any.
func (k Keyed) First() (Placement, bool) {
	if len(k.Order) == 0 {
		return Placement{}, false
	}
	return k.ForPlacement[k.Order[0]], true
}

func parseRoot(raw []byte) (gjson.Result, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return gjson.Result{}, false
	}
	return root, true
}

// eachElement calls fn for every element of an array value. Anything else
// is ignored.
func eachElement(v gjson.Result, fn func(gjson.Result)) {
	if !v.IsArray() {
		return
	}
	for _, e := range v.Array() {
		fn(e)
	}
}

func parsePlacement(v gjson.Result) Placement {
	return Placement{
		Key:               v.Get("key").String(),
		RelativeSelectors: relativeSelectors(v),
		Limit:             int(v.Get("limit").Int()),
		Enabled:           v.Get("enabled").Bool(),
		AdType:            AdType(v.Get("adType").String()),
		PrefillDisabled:   v.Get("prefillDisabled").Bool(),
		ConnatixID:        strings.TrimSpace(v.Get("connatixId").String()),
		HTML:              v.Get("html").String(),
		CSS:               v.Get("css").String(),
		Raw:               v,
	}
}

// relativeSelectors returns the native relativeSelectors list, or expands the
// legacy {selectors: [...], relative} shape into the same list form.
func relativeSelectors(v gjson.Result) []RelativeSelector {
	var out []RelativeSelector
	eachElement(v.Get("relativeSelectors"), func(rs gjson.Result) {
		pos, _ := ParsePosition(rs.Get("relative").String())
		out = append(out, RelativeSelector{
			Selector: rs.Get("selector").String(),
			Relative: pos,
		})
	})
	if len(out) > 0 {
		return out
	}

	pos, _ := ParsePosition(v.Get("relative").String())
	eachElement(v.Get("selectors"), func(sel gjson.Result) {
		out = append(out, RelativeSelector{Selector: sel.String(), Relative: pos})
	})
	return out
}

// AdsConfig is the ad rules family: placement policy plus blocking rules.
type AdsConfig struct {
	Keyed
	AdRules      []AdRule
	RefreshRates gjson.Result

	prebidBuild string
}

// ParseAdsConfig parses the ads config blob and the separately synced
// refresh rates blob. Either may be empty.
func ParseAdsConfig(raw, refreshRates []byte) *AdsConfig {
	c := &AdsConfig{Keyed: ParseKeyed(raw)}
	if rr, ok := parseRoot(refreshRates); ok {
		c.RefreshRates = rr
	}
	root, ok := parseRoot(raw)
	if !ok {
		return c
	}
	eachElement(root.Get("adRules"), func(v gjson.Result) {
		rule := AdRule{
			Enabled:    v.Get("enabled").Bool(),
			Component:  Component(strings.ToUpper(v.Get("component").String())),
			Comparator: Comparator(strings.ToUpper(v.Get("comparator").String())),
			Value:      v.Get("value").String(),
		}
		eachElement(v.Get("placementKeys"), func(k gjson.Result) {
			rule.PlacementKeys = append(rule.PlacementKeys, k.String())
		})
		c.AdRules = append(c.AdRules, rule)
	})
	c.prebidBuild = root.Get("prebid.useBuild").String()
	return c
}

// PrebidBuildURL returns the prebid build selected by the platform, or
// fallback when none is configured.
func (c *AdsConfig) PrebidBuildURL(fallback string) string {
	if c.prebidBuild != "" {
		return c.prebidBuild
	}
	return fallback
}

var modernPrebid = regexp.MustCompile(`sdk/(prebid|prebid-stable|prebid-canary)\.js`)

// PrebidModuleURL returns the ES module variant of the prebid build, or ""
// when the build is not one of the hosted SDK builds.
func (c *AdsConfig) PrebidModuleURL(fallback string) string {
	build := c.PrebidBuildURL(fallback)
	if !modernPrebid.MatchString(build) {
		return ""
	}
	return modernPrebid.ReplaceAllString(build, "sdk/$1.m.js")
}

// AmpConfig is the AMP fragment family. Each placement carries HTML.
type AmpConfig struct {
	Keyed
}

// ParseAmpConfig parses the AMP fragment blob.
func ParseAmpConfig(raw []byte) *AmpConfig {
	return &AmpConfig{Keyed: ParseKeyed(raw)}
}

// PrefillConfig is the prefill fragment family. Each placement carries
// HTML and CSS.
type PrefillConfig struct {
	Keyed
}

// ParsePrefillConfig parses the prefill fragment blob.
func ParsePrefillConfig(raw []byte) *PrefillConfig {
	return &PrefillConfig{Keyed: ParseKeyed(raw)}
}

// FbiaMode selects how instant-article placements are produced.
type FbiaMode int

const (
	FbiaDisabled FbiaMode = iota
	FbiaAutomatic
	FbiaManual
)

// FbiaConfig is the instant-articles fragment family.
type FbiaConfig struct {
	Keyed
	Mode      FbiaMode
	Enabled   bool
	AdDensity string
}

// ParseFbiaConfig parses the instant-articles blob. Out-of-range modes are
// treated as disabled.
func ParseFbiaConfig(raw []byte) *FbiaConfig {
	c := &FbiaConfig{Keyed: ParseKeyed(raw), AdDensity: "default"}
	root, ok := parseRoot(raw)
	if !ok {
		return c
	}
	mode := FbiaMode(root.Get("mode").Int())
	if mode < FbiaDisabled || mode > FbiaManual {
		mode = FbiaDisabled
	}
	c.Mode = mode
	c.Enabled = root.Get("enabled").Bool()
	if d := root.Get("adDensity").String(); d != "" {
		c.AdDensity = d
	}
	return c
}

// Automatic reports whether placements are left to the instant-articles
// platform.
func (c *FbiaConfig) Automatic() bool { return c.Mode == FbiaAutomatic }

// ConnatixConfig is the outstream video player setting.
type ConnatixConfig struct {
	Enabled     bool   `json:"enabled"`
	PlayspaceID string `json:"playspaceId"`
}

// ParseConnatixConfig parses the connatix object of the ad settings blob.
// raw may be the object itself or a settings document containing it.
func ParseConnatixConfig(raw []byte) ConnatixConfig {
	root, ok := parseRoot(raw)
	if !ok {
		return ConnatixConfig{}
	}
	if c := root.Get("connatix"); c.IsObject() {
		root = c
	}
	return ConnatixConfig{
		Enabled:     root.Get("enabled").Bool(),
		PlayspaceID: strings.TrimSpace(root.Get("playspaceId").String()),
	}
}

// ActivePlayspaceID returns the playspace id when the player is enabled and
// the id is well formed, otherwise "".
func (c ConnatixConfig) ActivePlayspaceID() string {
	if !c.Enabled {
		return ""
	}
	return ValidPlayspaceID(c.PlayspaceID)
}

// ValidPlayspaceID returns id if it parses as a UUID, otherwise "".
func ValidPlayspaceID(id string) string {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}
