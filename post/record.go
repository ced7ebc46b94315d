// Package post defines the structured types produced by the collection
// pipeline. These are the public API contract: any consumer (export encoder,
// HTTP service, custom sinks) imports this package to receive records.
package post

import "time"

// Link is one anchor found inside a collected container, in DOM order.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// Media is one media element (img, video, source) found inside a collected
// container, in DOM order.
type Media struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Record is one extracted content unit ("post").
type Record struct {
	// Timestamp is the extraction instant, set once and never mutated.
	Timestamp time.Time `json:"timestamp"`
	// ID is the logical identifier carried by the source container, if any.
	// Used for cross-delivery deduplication; may be empty.
	ID string `json:"id,omitempty"`
	// Text is the normalised textual content of the container.
	Text string `json:"text"`
	// Links are all anchor descendants, insertion order = DOM order.
	Links []Link `json:"links,omitempty"`
	// Media are all media descendants, insertion order = DOM order.
	Media []Media `json:"media,omitempty"`
	// Metadata holds auxiliary attributes. Currently always empty; reserved
	// for extension.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is the unit delivered by a page driver: one container node that
// matched the watch selector. Key is a surrogate identity stamped on the
// node the first time it is seen, so the same DOM node delivered in two
// mutation bursts carries the same key.
type Match struct {
	// Key is the stamped surrogate node key (prefix "node_").
	Key string `json:"key"`
	// LogicalID is the stable id attribute of the container, if present.
	LogicalID string `json:"logical_id,omitempty"`
	// HTML is the serialised container subtree.
	HTML string `json:"html"`
}

// MarkStatus is the cosmetic state a driver may paint onto a source node
// for observability. Never consulted by dedup or extraction.
type MarkStatus string

const (
	MarkProcessed MarkStatus = "processed"
	MarkExcluded  MarkStatus = "excluded"
)
