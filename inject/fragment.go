package inject

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FragmentBuilder turns placement HTML into detached nodes ready to be
// inserted into a target document. It is called once per insertion so every
// anchor receives its own copy.
type FragmentBuilder func(fragment string) ([]*html.Node, error)

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// HTML5Fragment parses fragment in a <body> context with the HTML5 parsing
// rules an ordinary page uses. The returned nodes have no parent.
func HTML5Fragment(fragment string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext)
	if err != nil {
		return nil, fmt.Errorf("inject: parse fragment: %w", err)
	}
	if blank(nodes) {
		return nil, ErrEmptyFragment
	}
	return nodes, nil
}

func blank(nodes []*html.Node) bool {
	for _, n := range nodes {
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return false
			}
		case html.CommentNode:
		default:
			return false
		}
	}
	return true
}

// AMPFragment parses fragment in a <body> context with scripting disabled,
// the way an AMP document is processed: <noscript> content becomes real nodes
// instead of raw text. The payload is not otherwise touched, so amp-* config
// scripts and every attribute reach the document as sent.
func AMPFragment(fragment string) ([]*html.Node, error) {
	nodes, err := html.ParseFragmentWithOptions(strings.NewReader(fragment), bodyContext,
		html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, fmt.Errorf("inject: parse amp fragment: %w", err)
	}
	if blank(nodes) {
		return nil, ErrEmptyFragment
	}
	return nodes, nil
}
