package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Selector is a parsed CSS selector covering the subset the pipeline needs:
//
//   - tag:          "article", "div"
//   - .class:       ".feed-item"
//   - #id:          "#main"
//   - tag.class:    "div.feed-item"
//   - tag[attr]:    "div[data-urn]"
//   - tag[attr=v]:  "div[role=article]"
//   - descendant combinator: "div.feed span.body"
//
// Full CSS is deliberately out of scope; feed containers are addressed by
// class or attribute in practice.
type Selector struct {
	parts []simpleSelector
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

// ParseSelector parses a selector string. An empty string is an error.
func ParseSelector(s string) (Selector, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Selector{}, errEmptySelector
	}
	sel := Selector{parts: make([]simpleSelector, len(fields))}
	for i, f := range fields {
		sel.parts[i] = parseSimple(f)
	}
	return sel, nil
}

// MustSelector parses a selector and panics on failure. For fixed selectors
// in tests and defaults.
func MustSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic("extract: bad selector " + s + ": " + err.Error())
	}
	return sel
}

func parseSimple(s string) simpleSelector {
	var sim simpleSelector

	if idx := strings.IndexByte(s, '['); idx >= 0 {
		attr := strings.TrimRight(s[idx+1:], "]")
		s = s[:idx]
		if eq := strings.IndexByte(attr, '='); eq >= 0 {
			sim.attrKey = attr[:eq]
			sim.attrVal = strings.Trim(attr[eq+1:], `"'`)
		} else {
			sim.attrKey = attr
		}
	}
	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		sim.id = s[idx+1:]
		s = s[:idx]
	}
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		sim.class = s[idx+1:]
		s = s[:idx]
	}
	sim.tag = s
	return sim
}

// All returns every node under root matching the selector, in document order.
// For descendant combinators each later part is resolved within the matches
// of the earlier one.
func (sel Selector) All(root *html.Node) []*html.Node {
	if len(sel.parts) == 0 {
		return nil
	}
	matches := matchSimple(root, sel.parts[0])
	for _, part := range sel.parts[1:] {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, part)...)
		}
		matches = next
	}
	return matches
}

// First returns the first match in document order, or nil.
func (sel Selector) First(root *html.Node) *html.Node {
	all := sel.All(root)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// Matches reports whether a single node satisfies the selector. Only the
// last part is considered; combinator context is the caller's concern.
func (sel Selector) Matches(n *html.Node) bool {
	if len(sel.parts) == 0 {
		return false
	}
	return matchesSimple(n, sel.parts[len(sel.parts)-1])
}

func matchSimple(root *html.Node, s simpleSelector) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n != root && matchesSimple(n, s) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func matchesSimple(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		val, ok := lookupAttr(n, s.attrKey)
		if !ok {
			return false
		}
		if s.attrVal != "" && val != s.attrVal {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
