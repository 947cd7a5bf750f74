package render

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/rules"
	"github.com/hazyhaar/adinject/targeting"
)

// Ads is the single-pass injector: the HTML of each placement in
// fragments, with targeting substituted, goes next to the anchors of the
// matching ads config entry. There is no style aggregation and no
// idempotency tracking. sub picks the targeting substitution; nil uses
// Substitute.
func (e *Engine) Ads(doc *html.Node, ads *placement.AdsConfig, fragments placement.Keyed, tc targeting.Context, sub Substitution) Report {
	r := newReport("ads")
	if sub == nil {
		sub = Substitute
	}
	ads = orEmptyAds(ads)
	tc = e.targeting(tc)

	blocked := rules.BlockedKeys(ads.AdRules, tc)
	r.setBlocked(blocked)
	if blocked.All() || doc == nil {
		return r
	}

	inj := inject.New(doc, inject.HTML5Fragment, inject.WithLogger(e.logger))
	for _, frag := range fragments.Placements() {
		p, ok := eligible(ads, blocked, frag.Key, &r)
		if !ok {
			continue
		}
		if frag.HTML == "" {
			r.skip(frag.Key, SkipNoHTML)
			continue
		}
		fragment := sub(p.AdType, frag.HTML, tc)
		r.add(e.run(frag.Key, func() inject.Result {
			return inj.InjectPlacement(fragment, p.RelativeSelectors, p.Limit)
		}))
	}
	return r
}
