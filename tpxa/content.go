package tpxa

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	htmlatom "golang.org/x/net/html/atom"

	"github.com/robertmeta/tpxa/xmltree"
)

// textContent returns the plain text of the best matching Atom text
// construct, preferring type="text" over html.
func textContent(elements []*xmltree.Node) string {
	if len(elements) == 0 {
		return ""
	}
	for _, el := range elements {
		if contentType(el) == "text" {
			return el.Text
		}
	}
	for _, el := range elements {
		if contentType(el) == "html" {
			return stripTags(el.Text)
		}
	}
	return flatten(elements[0])
}

// htmlContent returns markup for the best matching Atom text construct.
// Text constructs are treated as unprocessed markup of the exporting blog,
// not escaped.
func htmlContent(elements []*xmltree.Node) string {
	if len(elements) == 0 {
		return ""
	}
	for _, el := range elements {
		if contentType(el) == "html" {
			return el.Text
		}
	}
	for _, el := range elements {
		if contentType(el) == "xhtml" {
			return flatten(el)
		}
	}
	return elements[0].Text
}

func contentType(el *xmltree.Node) string {
	t := el.AttrValue(attrType)
	if t == "" {
		return "text"
	}
	return t
}

func flatten(n *xmltree.Node) string {
	var b strings.Builder
	var walk func(*xmltree.Node)
	walk = func(n *xmltree.Node) {
		b.WriteString(n.Text)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// stripTags extracts the text of an HTML fragment.
func stripTags(fragment string) string {
	nodes, err := xhtml.ParseFragment(strings.NewReader(fragment), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "div",
		DataAtom: htmlatom.Div,
	})
	if err != nil {
		return html.UnescapeString(fragment)
	}

	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.TrimSpace(b.String())
}
