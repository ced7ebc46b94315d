// Package extract turns one matched container subtree into a post.Record.
//
// The pipeline: serialized fragment → sanitize → parse → repost check →
// content text (sub-selector with whole-node fallback) → links → media.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

// ErrRepost marks a container recognised as a shared/republished item.
// The engine treats it as "seen but excluded": no record, no retry.
var ErrRepost = errors.New("extract: repost marker present")

var errEmptySelector = errors.New("extract: empty selector")

// FormatPlain and FormatMarkdown are the supported text output formats.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

// Options controls extraction of a single container.
type Options struct {
	// ContentSelector addresses the text body inside the container.
	// When nothing matches, the whole container text is used.
	ContentSelector Selector
	// RepostMarker identifies shared/republished containers. Zero value
	// disables the check.
	RepostMarker Selector
	// Format is FormatPlain (default) or FormatMarkdown.
	Format string
	// Sanitize strips markup bluemonday considers unsafe before parsing.
	// Off unless enabled (page.sanitize in the config).
	Sanitize bool
}

// Extractor extracts records from container fragments. Safe for use from a
// single goroutine (the engine's processing path).
type Extractor struct {
	policy *bluemonday.Policy
	now    func() time.Time
}

// New creates an Extractor. The bluemonday UGC policy mirrors what feed
// content may legitimately contain; class, id and data-* attributes are kept
// because the content and repost selectors address nodes through them.
func New() *Extractor {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "id").Globally()
	policy.AllowDataAttributes()
	return &Extractor{
		policy: policy,
		now:    time.Now,
	}
}

// Extract produces a Record from the serialized container subtree.
// The record timestamp is set at call start. The repost check runs before
// any field extraction and short-circuits with ErrRepost.
func (e *Extractor) Extract(fragment string, opts Options) (*post.Record, error) {
	ts := e.now()

	if opts.Sanitize {
		fragment = e.policy.Sanitize(fragment)
	}

	root, err := parseFragment(fragment)
	if err != nil {
		return nil, fmt.Errorf("extract: parse fragment: %w", err)
	}

	if len(opts.RepostMarker.parts) > 0 && opts.RepostMarker.First(root) != nil {
		return nil, ErrRepost
	}

	rec := &post.Record{
		Timestamp: ts,
		ID:        logicalID(root),
		Text:      e.contentText(root, opts),
		Links:     collectLinks(root),
		Media:     collectMedia(root),
		Metadata:  map[string]string{},
	}
	return rec, nil
}

// contentText resolves the content sub-selector against the container and
// falls back to the whole container text.
func (e *Extractor) contentText(root *html.Node, opts Options) string {
	target := root
	if n := opts.ContentSelector.First(root); n != nil {
		target = n
	}

	if opts.Format == FormatMarkdown {
		if md, err := htmltomarkdown.ConvertString(renderNode(target)); err == nil {
			if s := strings.TrimSpace(md); s != "" {
				return s
			}
		}
		// Conversion failure falls back to plain text.
	}
	return collectText(target)
}

// logicalID reads the container's stable identifier: data-id first, then
// data-urn, then the id attribute.
func logicalID(root *html.Node) string {
	container := firstElement(root)
	if container == nil {
		return ""
	}
	for _, key := range []string{"data-id", "data-urn", "id"} {
		if v, ok := lookupAttr(container, key); ok && v != "" {
			return v
		}
	}
	return ""
}

// collectLinks gathers every anchor descendant with an href, in DOM order.
func collectLinks(root *html.Node) []post.Link {
	var links []post.Link
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return
		}
		href, ok := lookupAttr(n, "href")
		if !ok || href == "" {
			return
		}
		links = append(links, post.Link{URL: href, Text: collectText(n)})
	})
	return links
}

// collectMedia gathers img, video and source descendants, in DOM order.
func collectMedia(root *html.Node) []post.Media {
	var media []post.Media
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.Img, atom.Video, atom.Source:
		default:
			return
		}
		src, ok := lookupAttr(n, "src")
		if !ok || src == "" {
			return
		}
		media = append(media, post.Media{Src: src, Alt: attr(n, "alt")})
	})
	return media
}

// parseFragment parses a serialized subtree. html.Parse wraps fragments in
// html/body; selectors operate within, so the wrapping is harmless.
func parseFragment(fragment string) (*html.Node, error) {
	return html.Parse(strings.NewReader(fragment))
}

// firstElement returns the first element node that is not part of the
// html/body wrapping added by the parser.
func firstElement(root *html.Node) *html.Node {
	var found *html.Node
	var f func(*html.Node) bool
	f = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Html, atom.Head, atom.Body:
			default:
				found = n
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if f(c) {
				return true
			}
		}
		return false
	}
	f(root)
	return found
}

func walk(root *html.Node, visit func(*html.Node)) {
	visit(root)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// collectText extracts visible text from a subtree, whitespace-normalised.
// Script, style and noscript content is skipped.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// renderNode serialises a subtree back to HTML.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// WithClock overrides the extractor's time source. Test hook.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}
