package render

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/placement"
)

func renderAMP(t *testing.T, e *Engine, ampRaw string, cnx placement.ConnatixConfig) (string, Report) {
	t.Helper()
	doc := parseHTML(t, articlePage)
	rep := e.AMP(doc, placement.ParseAdsConfig([]byte(adsBlob), nil), placement.ParseAmpConfig([]byte(ampRaw)), cnx, pageTargeting)
	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		t.Fatal(err)
	}
	return sb.String(), rep
}

func TestAMP_SubstitutesAndKeepsPayload(t *testing.T) {
	out, rep := renderAMP(t, testEngine(), ampBlob, placement.ConnatixConfig{})
	doc := query(t, out)

	ad := doc.Find("article amp-ad")
	if ad.Length() != 1 {
		t.Fatalf("amp-ad count = %d, want 1", ad.Length())
	}
	if js, _ := ad.Attr("json"); !strings.Contains(js, `"site":"news.example"`) || !strings.Contains(js, `"article":"gam-7"`) {
		t.Errorf("json attr = %q", js)
	}
	if v, _ := ad.Attr("style"); v != "margin:auto" {
		t.Errorf("style attr = %q", v)
	}
	cfg := ad.Find(`amp-analytics script[type="application/json"]`)
	if cfg.Length() != 1 || cfg.Text() != `{"vars":{"account":"UA-1"}}` {
		t.Errorf("analytics config = %q", cfg.Text())
	}

	player := doc.Find("amp-connatix-player")
	if player.Length() != 1 {
		t.Fatalf("player count = %d, want 1", player.Length())
	}
	if v, _ := player.Attr("data-param-custom-param1"); v != "gam-7" {
		t.Errorf("custom-param1 = %q", v)
	}
	if res, _ := rep.Result("video"); res.Inserted != 1 {
		t.Errorf("video result = %+v", res)
	}
}

func TestAMP_DefaultPlayerWhenNoOutstream(t *testing.T) {
	amp := `{"placements": [{"key": "hero", "html": "<amp-ad type=\"doubleclick\" json=\"{}\"></amp-ad>"}]}`
	cnx := placement.ConnatixConfig{Enabled: true, PlayspaceID: playspace}

	out, rep := renderAMP(t, testEngine(), amp, cnx)
	doc := query(t, out)
	if n := doc.Find("amp-connatix-player").Length(); n != 2 {
		t.Fatalf("default player count = %d, want 2", n)
	}
	first := doc.Find("p").First()
	if _, ok := first.Attr(MarkerOutstream); !ok {
		t.Error("first paragraph not marked")
	}
	if !first.Next().Is("amp-connatix-player") {
		t.Error("player is not right after the first paragraph")
	}
	if res, _ := rep.Result(DefaultPlayerKey); res.Inserted != 1 {
		t.Errorf("default player result = %+v", res)
	}
}

func TestAMP_DefaultPlayerOncePerDocument(t *testing.T) {
	e := testEngine()
	doc := parseHTML(t, articlePage)
	ads := placement.ParseAdsConfig([]byte(adsBlob), nil)
	amp := placement.ParseAmpConfig([]byte(`{"placements": []}`))
	cnx := placement.ConnatixConfig{Enabled: true, PlayspaceID: playspace}

	first := e.AMP(doc, ads, amp, cnx, pageTargeting)
	if res, _ := first.Result(DefaultPlayerKey); res.Inserted != 1 {
		t.Fatalf("first pass = %+v", res)
	}
	second := e.AMP(doc, ads, amp, cnx, pageTargeting)
	if res, _ := second.Result(DefaultPlayerKey); res.Inserted != 0 || res.Skipped != 1 {
		t.Errorf("second pass = %+v", res)
	}

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(sb.String(), "<amp-connatix-player"); n != 2 {
		t.Errorf("players after two passes = %d, want 2", n)
	}
}

func TestAMP_PlacementPlayer(t *testing.T) {
	e := testEngine()
	raw := strings.Replace(adsBlob, `"adType": "outstream_video",`, `"adType": "outstream_video", "connatixId": " `+playspace+` ",`, 1)
	ads := placement.ParseAdsConfig([]byte(raw), nil)
	amp := placement.ParseAmpConfig([]byte(ampBlob))
	cnx := placement.ConnatixConfig{Enabled: true, PlayspaceID: "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"}

	doc := parseHTML(t, articlePage)
	rep := e.AMP(doc, ads, amp, cnx, pageTargeting)
	if res, _ := rep.Result("video"); res.Inserted != 1 {
		t.Fatalf("video result = %+v", res)
	}
	if _, ok := rep.Result(DefaultPlayerKey); ok {
		t.Error("default player ran although the placement player landed")
	}

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		t.Fatal(err)
	}
	out := query(t, sb.String())
	players := out.Find("amp-connatix-player")
	if players.Length() != 2 {
		t.Fatalf("players = %d, want 2", players.Length())
	}
	if id, _ := players.First().Attr("data-player-id"); id != "ps_"+playspace {
		t.Errorf("player id = %q", id)
	}
	if _, ok := out.Find("article p").First().Attr(MarkerOutstream); !ok {
		t.Error("anchor not marked")
	}

	again := e.AMP(doc, ads, amp, cnx, pageTargeting)
	if res, _ := again.Result("video"); res.Inserted != 0 || res.Skipped != 1 {
		t.Errorf("second pass video result = %+v", res)
	}
	if _, ok := again.Result(DefaultPlayerKey); ok {
		t.Error("default player ran on the second pass")
	}
}

func TestAMP_NoDefaultPlayer(t *testing.T) {
	empty := `{"placements": []}`
	active := placement.ConnatixConfig{Enabled: true, PlayspaceID: playspace}

	tests := []struct {
		name    string
		e       *Engine
		amp     string
		cnx     placement.ConnatixConfig
		players int
	}{
		{"disabled", testEngine(), empty, placement.ConnatixConfig{PlayspaceID: playspace}, 0},
		{"bad playspace", testEngine(), empty, placement.ConnatixConfig{Enabled: true, PlayspaceID: "not-a-uuid"}, 0},
		{"config flag", NewEngine(&Config{AMP: AMPOptions{DisableDefaultPlayer: true}}, nil), empty, active, 0},
		{"outstream landed", testEngine(), ampBlob, active, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := renderAMP(t, tt.e, tt.amp, tt.cnx)
			if n := strings.Count(out, "<amp-connatix-player"); n != tt.players {
				t.Errorf("players = %d, want %d", n, tt.players)
			}
		})
	}
}

func TestAMP_AllBlocked(t *testing.T) {
	e := testEngine()
	doc := parseHTML(t, articlePage)
	ads := withRules(`[{"enabled": true, "component": "CATEGORY", "comparator": "STARTS_WITH", "value": "mark"}]`)
	rep := e.AMP(doc, ads, placement.ParseAmpConfig([]byte(ampBlob)), placement.ConnatixConfig{Enabled: true, PlayspaceID: playspace}, pageTargeting)
	if !rep.AllBlocked || rep.Inserted() != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestAMP_BlockedDefaultPlayer(t *testing.T) {
	e := testEngine()
	doc := parseHTML(t, articlePage)
	ads := withRules(`[{"enabled": true, "component": "URL", "comparator": "CONTAINS", "value": "rates", "placementKeys": ["connatix-default"]}]`)
	rep := e.AMP(doc, ads, placement.ParseAmpConfig([]byte(`{}`)), placement.ConnatixConfig{Enabled: true, PlayspaceID: playspace}, pageTargeting)
	if rep.Skipped[DefaultPlayerKey] != SkipBlocked {
		t.Errorf("skipped = %v", rep.Skipped)
	}
}
