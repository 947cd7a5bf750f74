// Package selector translates the CSS selectors found in placement configs
// into queries over an x/net/html document tree.
//
// Supported syntax is whatever cascadia accepts, which covers what the
// platform sends:
//   - tag: "p", "article"
//   - #id and .class, compound: "div#main.body"
//   - descendant and child combinators: "article p", "main > p"
//   - attribute selectors: "div[data-slot]", "div[role=main]"
//   - pseudo-classes such as :first-child and :nth-of-type(2)
//   - groups: "h2, h3"
//
// Matches are returned in document order.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrInvalidSelector is returned for empty or unparseable selectors.
var ErrInvalidSelector = errors.New("selector: invalid selector")

// Query is a compiled selector.
type Query struct {
	css   string
	group cascadia.SelectorGroup
}

// Compile parses css into a Query.
func Compile(css string) (Query, error) {
	css = strings.TrimSpace(css)
	if css == "" {
		return Query{}, fmt.Errorf("%w: empty", ErrInvalidSelector)
	}
	g, err := cascadia.ParseGroup(css)
	if err != nil {
		return Query{}, fmt.Errorf("%w %q: %v", ErrInvalidSelector, css, err)
	}
	return Query{css: css, group: g}, nil
}

// MustCompile is like Compile but panics on error. Use it for constants.
func MustCompile(css string) Query {
	q, err := Compile(css)
	if err != nil {
		panic(err)
	}
	return q
}

// All returns the descendants of root matching q, in document order.
// root itself is not tested.
func (q Query) All(root *html.Node) []*html.Node {
	if root == nil || q.group == nil {
		return nil
	}
	return cascadia.QueryAll(root, q.group)
}

// First returns the first descendant of root matching q, or nil.
func (q Query) First(root *html.Node) *html.Node {
	if root == nil || q.group == nil {
		return nil
	}
	return cascadia.Query(root, q.group)
}

// Match reports whether n matches q.
func (q Query) Match(n *html.Node) bool {
	return n != nil && q.group != nil && q.group.Match(n)
}

// String returns the source selector.
func (q Query) String() string { return q.css }

// All compiles css and returns its matches under root. Invalid selectors
// match nothing and return the parse error.
func All(root *html.Node, css string) ([]*html.Node, error) {
	q, err := Compile(css)
	if err != nil {
		return nil, err
	}
	return q.All(root), nil
}
