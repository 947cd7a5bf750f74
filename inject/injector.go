// Package inject inserts placement fragments into an HTML document tree.
//
// An Injector is bound to one document and one fragment strategy. For each
// placement it resolves every relative selector, builds a fresh fragment
// per anchor and inserts it at the requested position until the placement
// limit is reached. Failures never panic: they come back in a Result so the
// caller can skip the placement and keep rendering.
package inject

import (
	"errors"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/selector"
)

// MarkerProcessed is the attribute set on anchors that already received an
// idempotency-tracked fragment.
const MarkerProcessed = "data-adinject-processed"

// Result reports what one placement did to the document.
type Result struct {
	Key      string `json:"key"`
	Inserted int    `json:"inserted"`
	// Skipped counts anchors passed over because they carried the marker.
	Skipped int `json:"skipped,omitempty"`
	// Failed counts anchors where the insertion itself was refused.
	Failed int   `json:"failed,omitempty"`
	Err    error `json:"-"`
}

// OK reports whether the placement produced at least one insertion.
func (r Result) OK() bool { return r.Inserted > 0 }

// Injector mutates a single document. It is not safe for concurrent use.
type Injector struct {
	root   *html.Node
	build  FragmentBuilder
	logger *slog.Logger
}

// Option configures an Injector.
type Option func(*Injector)

// WithLogger sets the logger used for per-anchor diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(i *Injector) {
		if l != nil {
			i.logger = l
		}
	}
}

// New returns an Injector over root. A nil build uses HTML5Fragment.
func New(root *html.Node, build FragmentBuilder, opts ...Option) *Injector {
	if build == nil {
		build = HTML5Fragment
	}
	i := &Injector{root: root, build: build, logger: slog.Default()}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Root returns the document the injector mutates.
func (i *Injector) Root() *html.Node { return i.root }

type call struct {
	marker string
}

// InjectOption tunes a single InjectPlacement call.
type InjectOption func(*call)

// WithMarker makes the call idempotent: anchors carrying attr are skipped and
// attr is set on every anchor that receives a fragment. A marked anchor counts
// toward the limit, so a placement that already reached its limit in an
// earlier pass over the same document inserts nothing.
func WithMarker(attr string) InjectOption {
	return func(c *call) { c.marker = attr }
}

// InjectPlacement inserts fragment next to the anchors of rs, in selector
// order then document order, and stops as soon as limit insertions have
// succeeded. Later selectors and anchors are left untouched once the cap is
// hit. A limit of zero or less inserts nothing.
func (i *Injector) InjectPlacement(fragment string, rs []placement.RelativeSelector, limit int, opts ...InjectOption) Result {
	var c call
	for _, o := range opts {
		o(&c)
	}

	var res Result
	if limit <= 0 || i.root == nil {
		return res
	}

	var errs []error
	for _, r := range rs {
		q, err := selector.Compile(r.Selector)
		if err != nil {
			i.logger.Warn("inject: bad selector", "selector", r.Selector, "error", err)
			errs = append(errs, &ErrSelector{Selector: r.Selector, Cause: err})
			continue
		}
		pos, known := placement.ParsePosition(string(r.Relative))
		if !known {
			i.logger.Warn("inject: unknown relative", "selector", r.Selector, "relative", r.Relative)
			errs = append(errs, ErrUnknownPosition)
			continue
		}

		for _, anchor := range q.All(i.root) {
			if c.marker != "" && HasAttr(anchor, c.marker) {
				res.Skipped++
				if res.Inserted+res.Skipped >= limit {
					return res
				}
				continue
			}
			nodes, err := i.build(fragment)
			if err != nil {
				// The same HTML fails for every anchor; give up on the placement.
				res.Err = &ErrFragment{Cause: err}
				return res
			}
			if err := Insert(anchor, nodes, pos); err != nil {
				i.logger.Debug("inject: insert refused", "selector", r.Selector, "relative", pos, "error", err)
				res.Failed++
				continue
			}
			if c.marker != "" {
				SetAttr(anchor, c.marker, "1")
			}
			res.Inserted++
			if res.Inserted+res.Skipped >= limit {
				return res
			}
		}
	}

	if res.Inserted == 0 && len(errs) > 0 {
		res.Err = errors.Join(errs...)
	}
	return res
}

// Insert places nodes relative to anchor. Nodes must be detached.
func Insert(anchor *html.Node, nodes []*html.Node, pos placement.Position) error {
	if anchor == nil {
		return ErrNoParent
	}
	switch pos {
	case placement.InsideStart:
		first := anchor.FirstChild
		for _, n := range nodes {
			anchor.InsertBefore(n, first)
		}
	case placement.InsideEnd:
		for _, n := range nodes {
			anchor.AppendChild(n)
		}
	case placement.After:
		if anchor.Parent == nil {
			return ErrNoParent
		}
		next := anchor.NextSibling
		for _, n := range nodes {
			anchor.Parent.InsertBefore(n, next)
		}
	case placement.Before:
		if anchor.Parent == nil {
			return ErrNoParent
		}
		for _, n := range nodes {
			anchor.Parent.InsertBefore(n, anchor)
		}
	case placement.StickyFooter:
		if anchor.Parent == nil {
			return ErrNoParent
		}
		for _, n := range nodes {
			anchor.Parent.AppendChild(n)
		}
	default:
		return ErrUnknownPosition
	}
	return nil
}

// HasAttr reports whether n carries the attribute key.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key on n, replacing any existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
