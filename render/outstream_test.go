package render

import (
	"strings"
	"testing"
)

func TestOutstream_AfterFirstParagraph(t *testing.T) {
	e := testEngine()
	out, added, err := e.Outstream(`<p>one</p><p>two</p>`, playspace, pageTargeting)
	if err != nil || !added {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if strings.Count(out, `class="adinject-outstream"`) != 1 {
		t.Fatalf("player count wrong: %s", out)
	}
	if !strings.HasPrefix(out, `<p `+MarkerOutstream+`="1">one</p><div class="adinject-outstream"`) {
		t.Errorf("player not after first paragraph: %s", out)
	}
	for _, want := range []string{`"playerId":"` + playspace + `"`, `"customParam1":"gam-7"`, `"macros":{`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}

	again, added, err := e.Outstream(out, playspace, pageTargeting)
	if err != nil || added || again != out {
		t.Errorf("second pass changed content: added=%v err=%v", added, err)
	}
}

func TestOutstream_ParagraphAfterHeading(t *testing.T) {
	out, added, err := testEngine().Outstream(`<h2>t</h2><p>one</p><p>two</p>`, playspace, pageTargeting)
	if err != nil || !added {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if !strings.Contains(out, `<p `+MarkerOutstream+`="1">one</p><div class="adinject-outstream"`) {
		t.Errorf("player not after the first paragraph: %s", out)
	}
}

func TestOutstream_SpanFallback(t *testing.T) {
	out, added, err := testEngine().Outstream(`<div><span>x</span><span>y</span></div>`, playspace, pageTargeting)
	if err != nil || !added {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if !strings.Contains(out, `<span `+MarkerOutstream+`="1">x</span><div class="adinject-outstream"`) {
		t.Errorf("player not after first span: %s", out)
	}
}

func TestOutstream_Unchanged(t *testing.T) {
	e := testEngine()
	tests := []struct {
		name, content, psid string
	}{
		{"invalid playspace", `<p>a</p>`, "ps-1"},
		{"already embedded", `<p>a</p><div class="connatix-elements"></div>`, playspace},
		{"no anchor", `<div>text</div>`, playspace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, added, err := e.Outstream(tt.content, tt.psid, pageTargeting)
			if err != nil || added || out != tt.content {
				t.Errorf("out=%q added=%v err=%v", out, added, err)
			}
		})
	}
}
