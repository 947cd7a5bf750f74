// Package targeting holds the per-request targeting context and the string
// substitutions that splice it into fragment payloads.
package targeting

import (
	"net/url"
	"strings"
)

// Context describes the page being rendered. It is computed once per request
// by the caller and must not be modified while a render pass is running.
type Context struct {
	URL        string   `json:"url"`
	Sections   []string `json:"sections"`
	Keywords   []string `json:"keywords"`
	PageID     string   `json:"gamPageId"`
	ExternalID string   `json:"gamExternalId"`
	SiteDomain string   `json:"siteDomain"`
}

// Path returns the path component of the page URL, or "/" when the URL does
// not parse or has no path.
func (c Context) Path() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// SectionList returns the sections joined with commas.
func (c Context) SectionList() string { return strings.Join(c.Sections, ",") }

// KeywordList returns the keywords joined with commas.
func (c Context) KeywordList() string { return strings.Join(c.Keywords, ",") }
