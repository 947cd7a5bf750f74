package targeting

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Placeholder tokens the platform leaves in fragment HTML.
const (
	AdTargetingToken   = `json="{}"`
	ConnatixParamToken = `data-param="{}"`
	FbiaTargetingToken = `targeting = {};`
)

type adTargeting struct {
	AMP              int      `json:"amp"`
	Site             string   `json:"site"`
	Article          string   `json:"article"`
	TargetingArticle string   `json:"targeting_article"`
	ContentKeyword   []string `json:"content_keyword,omitempty"`
	TargetingKeyword []string `json:"targeting_keyword,omitempty"`
	SiteSection      []string `json:"site_section,omitempty"`
	TargetingSection []string `json:"targeting_section,omitempty"`
}

// AdTargetingJSON returns the {"targeting": {...}} document used by amp-ad
// fragments. Keyword and section fields are present only when non-empty.
func AdTargetingJSON(c Context) string {
	t := adTargeting{
		AMP:              1,
		Site:             c.SiteDomain,
		Article:          c.PageID,
		TargetingArticle: c.ExternalID,
	}
	if len(c.Keywords) > 0 {
		t.ContentKeyword = c.Keywords
		t.TargetingKeyword = c.Keywords
	}
	if len(c.Sections) > 0 {
		t.SiteSection = c.Sections
		t.TargetingSection = c.Sections
	}
	b, _ := json.Marshal(struct {
		Targeting adTargeting `json:"targeting"`
	}{t})
	return string(b)
}

// ApplyAdTargeting replaces the empty json attribute of a display fragment
// with the serialized targeting. Fragments without the token are returned
// unchanged.
func ApplyAdTargeting(fragment string, c Context) string {
	if !strings.Contains(fragment, AdTargetingToken) {
		return fragment
	}
	return strings.ReplaceAll(fragment, AdTargetingToken, attr("json", AdTargetingJSON(c)))
}

// ConnatixMacros returns the JSON macro block handed to the video player.
func ConnatixMacros(c Context) string {
	section := c.SectionList()
	keywords := c.KeywordList()
	cust := url.Values{}
	cust.Set("site", c.SiteDomain)
	cust.Set("targeting_article", c.ExternalID)
	cust.Set("targeting_section", section)
	cust.Set("targeting_keyword", keywords)
	cust.Set("article", c.PageID)

	b, _ := json.Marshal(struct {
		CustParams string `json:"cust_params"`
		Article    string `json:"article"`
		Category   string `json:"category"`
		Keywords   string `json:"keywords"`
	}{cust.Encode(), c.PageID, section, keywords})
	return string(b)
}

// ConnatixParams returns the player data attributes derived from c.
func ConnatixParams(c Context) string {
	return strings.Join([]string{
		attr("data-param-custom-param1", c.PageID),
		attr("data-param-custom-param2", c.SectionList()),
		attr("data-param-custom-param3", c.KeywordList()),
		attr("data-param-macros", ConnatixMacros(c)),
	}, " ")
}

// ApplyConnatixParams replaces the empty data-param attribute of an
// outstream fragment with the player parameters.
func ApplyConnatixParams(fragment string, c Context) string {
	if !strings.Contains(fragment, ConnatixParamToken) {
		return fragment
	}
	return strings.ReplaceAll(fragment, ConnatixParamToken, ConnatixParams(c))
}

// ApplyFbiaTargeting replaces the empty targeting literal of an
// instant-articles fragment script.
func ApplyFbiaTargeting(fragment string, c Context) string {
	if !strings.Contains(fragment, FbiaTargetingToken) {
		return fragment
	}
	b, _ := json.Marshal(struct {
		Context
		Fbia int `json:"fbia"`
	}{c, 1})
	return strings.ReplaceAll(fragment, FbiaTargetingToken, "targeting = "+string(b)+";")
}

// Player breakpoints, in CSS pixels.
const (
	BreakpointSM = 576
	BreakpointMD = 768
	BreakpointLG = 992
	BreakpointXL = 1200
)

// MinWidth returns a media query matching viewports at least size wide.
func MinWidth(size int) string { return fmt.Sprintf("(min-width: %dpx)", size) }

// MaxWidth returns a media query matching viewports at most size wide.
func MaxWidth(size int) string { return fmt.Sprintf("(max-width: %dpx)", size) }

// ConnatixPlayer returns amp-connatix-player markup for playspace psid.
// media may be empty.
func ConnatixPlayer(psid, media string, width, height int, c Context) string {
	var sb strings.Builder
	sb.WriteString("<amp-connatix-player")
	if media != "" {
		sb.WriteString(" " + attr("media", media))
	}
	fmt.Fprintf(&sb, ` %s layout="responsive" width="%d" height="%d" %s>`,
		attr("data-player-id", "ps_"+psid), width, height, ConnatixParams(c))
	sb.WriteString("</amp-connatix-player>")
	return sb.String()
}

// ConnatixPlayers returns a small-screen 4:3 and a large-screen 16:9 player
// split at the MD breakpoint.
func ConnatixPlayers(psid string, c Context) string {
	small := ConnatixPlayer(psid, MaxWidth(BreakpointMD-1), 4, 3, c)
	large := ConnatixPlayer(psid, MinWidth(BreakpointMD), 16, 9, c)
	return small + "\n" + large
}

func attr(name, value string) string {
	return name + `="` + html.EscapeString(value) + `"`
}
