package render

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/rules"
	"github.com/hazyhaar/adinject/targeting"
)

// Prefill inserts placeholder markup into a fully rendered page so ad slots
// reserve their space before scripts run.
//
// Placements are taken in prefill config order. Each must be enabled in the
// ads config, not blocked and not flagged prefillDisabled. The CSS of every
// placement that landed at least once is appended, in that order, to a
// single style element in head. When the rules block everything the page
// is returned untouched.
func (e *Engine) Prefill(page string, ads *placement.AdsConfig, prefill *placement.PrefillConfig, tc targeting.Context) (string, Report, error) {
	r := newReport("prefill")
	ads = orEmptyAds(ads)
	tc = e.targeting(tc)

	blocked := rules.BlockedKeys(ads.AdRules, tc)
	r.setBlocked(blocked)
	if blocked.All() {
		return page, r, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return page, r, fmt.Errorf("render: parse page: %w", err)
	}
	root := doc.Nodes[0]
	inj := inject.New(root, inject.HTML5Fragment, inject.WithLogger(e.logger))

	var styles strings.Builder
	if prefill != nil {
		for _, frag := range prefill.Placements() {
			p, ok := eligible(ads, blocked, frag.Key, &r)
			if !ok {
				continue
			}
			if p.PrefillDisabled {
				r.skip(frag.Key, SkipPrefillDisabled)
				continue
			}
			res := e.run(frag.Key, func() inject.Result {
				return inj.InjectPlacement(frag.HTML, p.RelativeSelectors, p.Limit)
			})
			r.add(res)
			if res.Inserted > 0 && frag.CSS != "" {
				styles.WriteString(frag.CSS)
				styles.WriteString("\n")
			}
		}
	}

	if styles.Len() > 0 {
		if head := doc.Find("head").First(); head.Length() > 0 {
			inject.AppendStyle(head.Nodes[0], styles.String(), e.cfg.Prefill.StyleID)
			r.StyleBytes = styles.Len()
		}
	}

	ensureDoctype(root)
	out, err := renderNode(root)
	if err != nil {
		return page, r, err
	}
	e.logger.Debug("render: prefill done", "inserted", r.Inserted(), "style_bytes", r.StyleBytes)
	return out, r, nil
}
