// Package sources holds the site adapters the service ships with.
package sources

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Default source names, as used in ENABLED_SOURCES.
const (
	NameReddit     = "reddit"
	NameCraigslist = "craigslist"
	NameAdzuna     = "adzuna"
)

// ─── HTML helpers ────────────────────────────────────────────────────────────

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findAll returns the element nodes below root matching tag (any tag when empty)
// and class, in document order. Matches are not searched further.
func findAll(root *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (tag == "" || n.Data == tag) && (class == "" || hasClass(n, class)) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, tag, class string) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if m := findAll(c, tag, class); len(m) > 0 {
			return m[0]
		}
	}
	return nil
}

// text returns the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// absolute resolves href against base.
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
