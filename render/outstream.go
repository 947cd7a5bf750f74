package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/targeting"
)

// OutstreamKey names the in-content player in reports.
const OutstreamKey = "outstream"

var outstreamAnchors = []placement.RelativeSelector{
	{Selector: "p", Relative: placement.After},
	{Selector: "span", Relative: placement.After},
}

// Outstream adds the video player after the first paragraph of a post body,
// or after the first span when the body has no paragraph. Content that
// already embeds a player, or that went through Outstream before, comes
// back unchanged, so re-rendering the same post is safe. The bool reports
// whether a player was added.
func (e *Engine) Outstream(content, playspaceID string, tc targeting.Context) (string, bool, error) {
	psid := placement.ValidPlayspaceID(playspaceID)
	if psid == "" {
		return content, false, nil
	}
	if strings.Contains(content, e.cfg.Outstream.SkipMarker) || strings.Contains(content, MarkerOutstream) {
		return content, false, nil
	}
	tc = e.targeting(tc)

	body := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := xhtml.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return content, false, fmt.Errorf("render: parse content: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	player, err := e.outstreamPlayer(psid, tc)
	if err != nil {
		return content, false, err
	}
	inj := inject.New(body, inject.HTML5Fragment, inject.WithLogger(e.logger))
	res := e.run(OutstreamKey, func() inject.Result {
		return inj.InjectPlacement(player, outstreamAnchors, 1, inject.WithMarker(MarkerOutstream))
	})
	if res.Inserted == 0 {
		return content, false, res.Err
	}
	out, err := renderChildren(body)
	if err != nil {
		return content, false, err
	}
	return out, true, nil
}

type playerOptions struct {
	PlayerID     string         `json:"playerId"`
	CustomParam1 string         `json:"customParam1"`
	CustomParam2 string         `json:"customParam2"`
	CustomParam3 string         `json:"customParam3"`
	Settings     playerSettings `json:"settings"`
}

type playerSettings struct {
	Advertising struct {
		Macros json.RawMessage `json:"macros"`
	} `json:"advertising"`
}

func (e *Engine) outstreamPlayer(psid string, tc targeting.Context) (string, error) {
	opts := playerOptions{
		PlayerID:     psid,
		CustomParam1: tc.PageID,
		CustomParam2: tc.SectionList(),
		CustomParam3: tc.KeywordList(),
	}
	opts.Settings.Advertising.Macros = json.RawMessage(targeting.ConnatixMacros(tc))
	b, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("render: player options: %w", err)
	}
	id := e.newID()
	return fmt.Sprintf(`<div class="adinject-outstream" id="%s"></div>`+
		`<script>cnxps.cmd.push(function(){cnxps(%s).render("%s");});</script>`,
		html.EscapeString(id), b, id), nil
}
