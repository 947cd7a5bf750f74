package render

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/rules"
	"github.com/hazyhaar/adinject/targeting"
)

// DefaultPlayerKey names the fallback video player in reports and rules.
const DefaultPlayerKey = "connatix-default"

// MarkerOutstream marks anchors that received a video player.
const MarkerOutstream = "data-adinject-outstream"

var afterFirstParagraph = []placement.RelativeSelector{
	{Selector: "p", Relative: placement.After},
}

// AMP injects the AMP fragment family into doc, which the caller owns.
// Fragment HTML gets the targeting substitution of the placement's ad type
// and is parsed the way an AMP document is. An outstream placement with its
// own playspace id gets the two-breakpoint player at its anchors instead of
// its fragment. When the video player is configured and no outstream
// placement landed, a default responsive player is added after the first
// paragraph. Players mark their anchors, so a second pass over the same
// document adds none.
func (e *Engine) AMP(doc *html.Node, ads *placement.AdsConfig, amp *placement.AmpConfig, cnx placement.ConnatixConfig, tc targeting.Context) Report {
	r := newReport("amp")
	ads = orEmptyAds(ads)
	tc = e.targeting(tc)

	blocked := rules.BlockedKeys(ads.AdRules, tc)
	r.setBlocked(blocked)
	if blocked.All() || doc == nil {
		return r
	}

	inj := inject.New(doc, e.amp, inject.WithLogger(e.logger))
	outstream := false
	if amp != nil {
		for _, frag := range amp.Placements() {
			p, ok := eligible(ads, blocked, frag.Key, &r)
			if !ok {
				continue
			}
			if psid := placement.ValidPlayspaceID(p.ConnatixID); p.AdType == placement.AdTypeOutstreamVideo && psid != "" {
				players := targeting.ConnatixPlayers(psid, tc)
				res := e.run(frag.Key, func() inject.Result {
					return inj.InjectPlacement(players, p.RelativeSelectors, p.Limit, inject.WithMarker(MarkerOutstream))
				})
				r.add(res)
				if res.Inserted+res.Skipped > 0 {
					outstream = true
				}
				continue
			}
			if frag.HTML == "" {
				r.skip(frag.Key, SkipNoHTML)
				continue
			}
			fragment := Substitute(p.AdType, frag.HTML, tc)
			res := e.run(frag.Key, func() inject.Result {
				return inj.InjectPlacement(fragment, p.RelativeSelectors, p.Limit)
			})
			r.add(res)
			if p.AdType == placement.AdTypeOutstreamVideo && res.Inserted > 0 {
				outstream = true
			}
		}
	}

	psid := cnx.ActivePlayspaceID()
	if psid == "" || outstream || e.cfg.AMP.DisableDefaultPlayer {
		return r
	}
	if blocked.Blocks(DefaultPlayerKey) {
		r.skip(DefaultPlayerKey, SkipBlocked)
		return r
	}
	players := targeting.ConnatixPlayers(psid, tc)
	res := e.run(DefaultPlayerKey, func() inject.Result {
		return inj.InjectPlacement(players, afterFirstParagraph, 1, inject.WithMarker(MarkerOutstream))
	})
	r.add(res)
	return r
}
