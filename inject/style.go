package inject

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// AppendStyle appends <style type="text/css" id="id">css</style> as the last
// child of head and returns it. Nothing is appended when css is empty or
// head is nil.
func AppendStyle(head *html.Node, css, id string) *html.Node {
	if head == nil || css == "" {
		return nil
	}
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: "type", Val: "text/css"}},
	}
	if id != "" {
		style.Attr = append(style.Attr, html.Attribute{Key: "id", Val: id})
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	head.AppendChild(style)
	return style
}
