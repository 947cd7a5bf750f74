package inject

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/selector"
)

const fiveParagraphs = `<html><head></head><body><article>
<p>1</p><p>2</p><p>3</p><p>4</p><p>5</p>
</article></body></html>`

func parseDoc(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func count(t *testing.T, root *html.Node, css string) int {
	t.Helper()
	return len(selector.MustCompile(css).All(root))
}

func rs(sel string, pos placement.Position) []placement.RelativeSelector {
	return []placement.RelativeSelector{{Selector: sel, Relative: pos}}
}

func TestInjectPlacement_LimitStopsEarly(t *testing.T) {
	doc := parseDoc(t, fiveParagraphs)
	inj := New(doc, nil)

	res := inj.InjectPlacement(`<div class="ad"></div>`, rs("p", placement.After), 2)
	if res.Inserted != 2 || res.Err != nil {
		t.Fatalf("result = %+v, want 2 insertions", res)
	}
	out := render(t, doc)
	if !strings.Contains(out, `<p>1</p><div class="ad"></div><p>2</p><div class="ad"></div><p>3</p><p>4</p><p>5</p>`) {
		t.Errorf("unexpected document: %s", out)
	}
}

func TestInjectPlacement_LimitSpansSelectors(t *testing.T) {
	sels := []placement.RelativeSelector{
		{Selector: "article", Relative: placement.InsideStart},
		{Selector: "p", Relative: placement.Before},
		{Selector: "p", Relative: placement.After},
	}
	for limit := 0; limit <= 8; limit++ {
		doc := parseDoc(t, fiveParagraphs)
		res := New(doc, nil).InjectPlacement(`<i class="ad"></i>`, sels, limit)
		want := min(limit, 11)
		if res.Inserted != want {
			t.Errorf("limit %d: inserted %d", limit, res.Inserted)
		}
		if got := count(t, doc, "i.ad"); got != want {
			t.Errorf("limit %d: %d fragments in document", limit, got)
		}
	}
}

func TestInjectPlacement_Positions(t *testing.T) {
	tests := []struct {
		pos  placement.Position
		want string
	}{
		{placement.InsideStart, `<div id="a"><b></b><span>x</span></div>`},
		{placement.InsideEnd, `<div id="a"><span>x</span><b></b></div>`},
		{placement.After, `<div id="a"><span>x</span></div><b></b><em></em>`},
		{placement.Before, `<b></b><div id="a"><span>x</span></div><em></em>`},
		{placement.StickyFooter, `<div id="a"><span>x</span></div><em></em><b></b>`},
	}
	for _, tt := range tests {
		doc := parseDoc(t, `<body><div id="a"><span>x</span></div><em></em></body>`)
		res := New(doc, nil).InjectPlacement(`<b></b>`, rs("#a", tt.pos), 1)
		if res.Inserted != 1 {
			t.Errorf("%s: inserted %d", tt.pos, res.Inserted)
			continue
		}
		if out := render(t, doc); !strings.Contains(out, "<body>"+tt.want+"</body>") {
			t.Errorf("%s: got %s", tt.pos, out)
		}
	}
}

func TestInjectPlacement_LowerCaseRelative(t *testing.T) {
	doc := parseDoc(t, fiveParagraphs)
	res := New(doc, nil).InjectPlacement(`<hr>`, rs("p", "after"), 1)
	if res.Inserted != 1 {
		t.Fatalf("inserted %d, want 1", res.Inserted)
	}
}

func TestInjectPlacement_FailClosed(t *testing.T) {
	doc := parseDoc(t, fiveParagraphs)
	before := render(t, doc)
	inj := New(doc, nil)

	res := inj.InjectPlacement(`<b></b>`, rs("p", "SIDEWAYS"), 3)
	if res.Inserted != 0 || !errors.Is(res.Err, ErrUnknownPosition) {
		t.Errorf("unknown relative: %+v", res)
	}

	res = inj.InjectPlacement(`<b></b>`, rs("p[", placement.After), 3)
	if res.Inserted != 0 || !errors.Is(res.Err, selector.ErrInvalidSelector) {
		t.Errorf("bad selector: %+v", res)
	}
	var se *ErrSelector
	if !errors.As(res.Err, &se) || se.Selector != "p[" {
		t.Errorf("err = %v, want ErrSelector", res.Err)
	}

	res = inj.InjectPlacement("  \n ", rs("p", placement.After), 3)
	if !errors.Is(res.Err, ErrEmptyFragment) {
		t.Errorf("empty fragment: %+v", res)
	}

	res = inj.InjectPlacement(`<b></b>`, rs("p", placement.After), 0)
	if res.Inserted != 0 || res.Err != nil {
		t.Errorf("zero limit: %+v", res)
	}

	if after := render(t, doc); after != before {
		t.Errorf("document changed:\n%s\n%s", before, after)
	}
}

func TestInjectPlacement_BadSelectorDoesNotStopOthers(t *testing.T) {
	doc := parseDoc(t, fiveParagraphs)
	sels := []placement.RelativeSelector{
		{Selector: "div >", Relative: placement.After},
		{Selector: "p", Relative: placement.After},
	}
	res := New(doc, nil).InjectPlacement(`<b></b>`, sels, 1)
	if res.Inserted != 1 || res.Err != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestInsert_NoParent(t *testing.T) {
	detached := &html.Node{Type: html.ElementNode, Data: "div"}
	for _, pos := range []placement.Position{placement.After, placement.Before, placement.StickyFooter} {
		nodes, _ := HTML5Fragment(`<b></b>`)
		if err := Insert(detached, nodes, pos); !errors.Is(err, ErrNoParent) {
			t.Errorf("%s: err = %v, want ErrNoParent", pos, err)
		}
	}
	nodes, _ := HTML5Fragment(`<b></b>`)
	if err := Insert(detached, nodes, placement.InsideEnd); err != nil {
		t.Errorf("InsideEnd on detached node: %v", err)
	}
	if err := Insert(detached, nil, "NOWHERE"); !errors.Is(err, ErrUnknownPosition) {
		t.Errorf("err = %v, want ErrUnknownPosition", err)
	}
}

func TestInjectPlacement_Idempotent(t *testing.T) {
	doc := parseDoc(t, fiveParagraphs)
	sels := rs("p:first-child", placement.After)

	first := New(doc, nil).InjectPlacement(`<div class="player"></div>`, sels, 1, WithMarker(MarkerProcessed))
	if first.Inserted != 1 {
		t.Fatalf("first pass: %+v", first)
	}
	once := render(t, doc)

	second := New(doc, nil).InjectPlacement(`<div class="player"></div>`, sels, 1, WithMarker(MarkerProcessed))
	if second.Inserted != 0 || second.Skipped != 1 {
		t.Errorf("second pass: %+v", second)
	}
	if twice := render(t, doc); twice != once {
		t.Errorf("second pass changed the document:\n%s\n%s", once, twice)
	}
	if !strings.Contains(once, `<p data-adinject-processed="1">1</p>`) {
		t.Errorf("marker missing: %s", once)
	}
}

func TestInjectPlacement_MarkedAnchorsCountTowardLimit(t *testing.T) {
	tests := []struct {
		name         string
		firstLimit   int
		secondLimit  int
		wantInserted int
		wantSkipped  int
		wantPlayers  int
	}{
		{"limit one", 1, 1, 0, 1, 1},
		{"limit three", 3, 3, 0, 3, 3},
		{"limit raised", 2, 3, 1, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, fiveParagraphs)
			sels := rs("p", placement.After)
			const player = `<div class="player"></div>`

			first := New(doc, nil).InjectPlacement(player, sels, tt.firstLimit, WithMarker(MarkerProcessed))
			if first.Inserted != tt.firstLimit {
				t.Fatalf("first pass: %+v", first)
			}
			second := New(doc, nil).InjectPlacement(player, sels, tt.secondLimit, WithMarker(MarkerProcessed))
			if second.Inserted != tt.wantInserted || second.Skipped != tt.wantSkipped {
				t.Errorf("second pass: %+v", second)
			}
			if got := count(t, doc, "div.player"); got != tt.wantPlayers {
				t.Errorf("players = %d, want %d", got, tt.wantPlayers)
			}
		})
	}
}

func TestInjectPlacement_FreshFragmentPerAnchor(t *testing.T) {
	doc := parseDoc(t, fiveParagraphs)
	calls := 0
	build := func(s string) ([]*html.Node, error) {
		calls++
		return HTML5Fragment(s)
	}
	res := New(doc, build).InjectPlacement(`<b></b>`, rs("p", placement.InsideEnd), 5)
	if res.Inserted != 5 || calls != 5 {
		t.Errorf("inserted %d with %d builds", res.Inserted, calls)
	}
	for _, p := range selector.MustCompile("p").All(doc) {
		if p.LastChild == nil || p.LastChild.Data != "b" {
			t.Errorf("paragraph missing fragment: %s", render(t, p))
		}
	}
}

func TestAppendStyle(t *testing.T) {
	doc := parseDoc(t, `<html><head><title>t</title></head><body></body></html>`)
	head := selector.MustCompile("head").First(doc)

	if AppendStyle(head, "", "x") != nil {
		t.Error("empty css produced a style node")
	}
	AppendStyle(head, ".a{color:red}\n", "adinject-prefill-css")
	out := render(t, doc)
	want := `<title>t</title><style type="text/css" id="adinject-prefill-css">.a{color:red}` + "\n" + `</style></head>`
	if !strings.Contains(out, want) {
		t.Errorf("got %s", out)
	}
}
