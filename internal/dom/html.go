package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return convert(doc), nil
}

// ParseString parses a full HTML document from a string.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// ParseFragment parses markup as the children of a div.
func ParseFragment(markup string) ([]*Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if c := convert(n); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func convert(h *html.Node) *Node {
	var n *Node
	switch h.Type {
	case html.DocumentNode:
		n = NewDocument()
	case html.ElementNode:
		n = &Node{Type: ElementNode, Tag: h.Data}
		for _, a := range h.Attr {
			n.Attrs = append(n.Attrs, Attr{Key: a.Key, Value: a.Val})
		}
	case html.TextNode:
		return NewText(h.Data)
	case html.CommentNode:
		return NewComment(h.Data)
	default:
		return nil
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if cc := convert(c); cc != nil {
			n.AppendChild(cc)
		}
	}
	return n
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// rawText elements hold their content verbatim.
var rawText = map[string]bool{
	"script": true, "style": true, "textarea": true, "title": true,
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")
)

// Render writes n as HTML. Text is escaped for &, < and > only, so template
// expressions containing quotes survive a round trip.
func Render(w io.Writer, n *Node) error {
	var sb strings.Builder
	render(&sb, n, false)
	_, err := io.WriteString(w, sb.String())
	return err
}

// OuterHTML returns the markup of n.
func OuterHTML(n *Node) string {
	var sb strings.Builder
	render(&sb, n, false)
	return sb.String()
}

// InnerHTML returns the markup of the children of n.
func InnerHTML(n *Node) string {
	var sb strings.Builder
	raw := n.Type == ElementNode && rawText[n.Tag]
	for _, c := range n.Children {
		render(&sb, c, raw)
	}
	return sb.String()
}

func render(sb *strings.Builder, n *Node, raw bool) {
	switch n.Type {
	case DocumentNode:
		sb.WriteString("<!DOCTYPE html>")
		for _, c := range n.Children {
			render(sb, c, false)
		}
	case TextNode:
		if raw {
			sb.WriteString(n.Data)
		} else {
			sb.WriteString(textEscaper.Replace(n.Data))
		}
	case CommentNode:
		sb.WriteString("<!--")
		sb.WriteString(n.Data)
		sb.WriteString("-->")
	case ElementNode:
		sb.WriteByte('<')
		sb.WriteString(n.Tag)
		for _, a := range n.Attrs {
			sb.WriteByte(' ')
			sb.WriteString(a.Key)
			sb.WriteString(`="`)
			sb.WriteString(attrEscaper.Replace(a.Value))
			sb.WriteByte('"')
		}
		sb.WriteByte('>')
		if voidElements[n.Tag] {
			return
		}
		childRaw := rawText[n.Tag]
		for _, c := range n.Children {
			render(sb, c, childRaw)
		}
		sb.WriteString("</")
		sb.WriteString(n.Tag)
		sb.WriteByte('>')
	}
}

// Body returns the body element of a document, or the document itself.
func Body(doc *Node) *Node {
	var body *Node
	Walk(doc, func(n *Node) bool {
		if body != nil {
			return false
		}
		if n.Type == ElementNode && n.Tag == "body" {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return doc
	}
	return body
}
