package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/rules"
	"github.com/hazyhaar/adinject/targeting"
)

// ErrFbiaDisabled is returned by Fbia when the instant-articles config is
// disabled.
var ErrFbiaDisabled = errors.New("render: instant articles disabled")

// Fbia renders an instant-articles document. A meta tag tells the platform
// whether it places ads itself. In automatic mode the first placement is
// appended to the article header; in manual mode every placement goes
// through the generic injector. The returned string is empty when nothing
// was injected, in which case the article should be served without ads.
func (e *Engine) Fbia(page string, ads *placement.AdsConfig, fbia *placement.FbiaConfig, tc targeting.Context) (string, Report, error) {
	r := newReport("fbia")
	if fbia == nil || !fbia.Enabled || fbia.Mode == placement.FbiaDisabled {
		return "", r, ErrFbiaDisabled
	}
	ads = orEmptyAds(ads)
	tc = e.targeting(tc)

	blocked := rules.BlockedKeys(ads.AdRules, tc)
	r.setBlocked(blocked)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", r, fmt.Errorf("render: parse page: %w", err)
	}
	root := doc.Nodes[0]
	doc.Find("head").First().AppendNodes(fbiaMeta(fbia))

	var injected int
	if fbia.Automatic() {
		injected = e.fbiaAutomatic(doc, fbia, blocked, tc, &r)
	} else {
		inj := inject.New(root, inject.HTML5Fragment, inject.WithLogger(e.logger))
		for _, frag := range fbia.Placements() {
			fragment := targeting.ApplyFbiaTargeting(frag.HTML, tc)
			if fragment == "" {
				r.skip(frag.Key, SkipNoHTML)
				continue
			}
			p, ok := eligible(ads, blocked, frag.Key, &r)
			if !ok {
				continue
			}
			res := e.run(frag.Key, func() inject.Result {
				return inj.InjectPlacement(fragment, p.RelativeSelectors, p.Limit)
			})
			r.add(res)
			injected += res.Inserted
		}
	}
	if injected == 0 {
		return "", r, nil
	}
	out, err := renderNode(root)
	if err != nil {
		return "", r, err
	}
	return out, r, nil
}

func (e *Engine) fbiaAutomatic(doc *goquery.Document, fbia *placement.FbiaConfig, blocked rules.Set, tc targeting.Context, r *Report) int {
	frag, ok := fbia.First()
	if !ok {
		return 0
	}
	if blocked.Blocks(frag.Key) {
		r.skip(frag.Key, SkipBlocked)
		return 0
	}
	fragment := targeting.ApplyFbiaTargeting(frag.HTML, tc)
	if fragment == "" {
		r.skip(frag.Key, SkipNoHTML)
		return 0
	}
	header := doc.Find("header").First()
	if header.Length() == 0 {
		r.skip(frag.Key, SkipNoAnchor)
		return 0
	}
	res := e.run(frag.Key, func() inject.Result {
		nodes, err := inject.HTML5Fragment(fragment)
		if err != nil {
			return inject.Result{Err: &inject.ErrFragment{Cause: err}}
		}
		header.AppendNodes(nodes...)
		return inject.Result{Inserted: 1}
	})
	r.add(res)
	return res.Inserted
}

func fbiaMeta(fbia *placement.FbiaConfig) *html.Node {
	content := "false"
	if fbia.Automatic() {
		content = "enabled=true ad_density=" + fbia.AdDensity
	}
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "meta",
		DataAtom: atom.Meta,
		Attr: []html.Attribute{
			{Key: "property", Val: "fb:use_automatic_ad_placement"},
			{Key: "content", Val: content},
		},
	}
}
