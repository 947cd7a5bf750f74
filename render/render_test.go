package render

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/targeting"
)

const articlePage = `<html><head><title>Rates rise</title></head><body>
<header><h1>Rates rise</h1></header>
<article>
<p>one</p><p>two</p><p>three</p>
</article>
<footer id="site-footer"></footer>
</body></html>`

const adsBlob = `{
	"placements": [
		{"key": "hero", "enabled": true, "limit": 1, "adType": "display_default",
		 "relativeSelectors": [{"selector": "article p", "relative": "AFTER"}]},
		{"key": "inline", "enabled": true, "limit": 2, "adType": "display_default",
		 "selectors": ["article p"], "relative": "before"},
		{"key": "footer", "enabled": false, "limit": 1,
		 "relativeSelectors": [{"selector": "#site-footer", "relative": "INSIDE_END"}]},
		{"key": "video", "enabled": true, "limit": 1, "adType": "outstream_video",
		 "relativeSelectors": [{"selector": "article p:first-child", "relative": "AFTER"}]},
		{"key": "noprefill", "enabled": true, "limit": 1, "prefillDisabled": true,
		 "relativeSelectors": [{"selector": "header", "relative": "INSIDE_END"}]}
	],
	"adRules": []
}`

const prefillBlob = `{"placements": [
	{"key": "hero", "html": "<div class=\"slot hero-slot\"></div>", "css": ".hero{color:red}"},
	{"key": "footer", "html": "<div class=\"slot footer-slot\"></div>", "css": ".footer{color:blue}"},
	{"key": "noprefill", "html": "<div class=\"slot np-slot\"></div>", "css": ".np{}"},
	{"key": "unknown", "html": "<div class=\"slot unknown-slot\"></div>", "css": ".unknown{}"}
]}`

const ampBlob = `{"placements": [
	{"key": "hero", "html": "<amp-ad width=\"300\" height=\"250\" type=\"doubleclick\" json=\"{}\" style=\"margin:auto\"><amp-analytics type=\"googleanalytics\"><script type=\"application/json\">{\"vars\":{\"account\":\"UA-1\"}}</script></amp-analytics></amp-ad>"},
	{"key": "video", "html": "<amp-connatix-player data-player-id=\"ps_x\" layout=\"responsive\" width=\"16\" height=\"9\" data-param=\"{}\"></amp-connatix-player>"}
]}`

const playspace = "0b8f6a7e-3c1d-4d8e-9c6a-2f1e5b7d9a01"

var pageTargeting = targeting.Context{
	URL:        "https://news.example/markets/rates-rise",
	Sections:   []string{"markets"},
	Keywords:   []string{"finance"},
	PageID:     "gam-7",
	ExternalID: "7",
}

func testEngine() *Engine {
	return NewEngine(&Config{SiteDomain: "news.example", AffiliateDomain: "https://aff.example"}, nil)
}

func withRules(rules string) *placement.AdsConfig {
	return placement.ParseAdsConfig([]byte(strings.Replace(adsBlob, `"adRules": []`, `"adRules": `+rules, 1)), nil)
}

func query(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	return doc
}

func parseHTML(t *testing.T, page string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	return n
}
