package postwatch

import (
	"context"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

// PageDriver is the engine's view of the page under collection. The
// production implementation drives a Chrome tab through an injected
// script; tests substitute a fake.
type PageDriver interface {
	// Observe starts reporting containers matching selector to offer.
	// It must be called before Scan.
	Observe(ctx context.Context, selector string, offer func(post.Match)) error

	// Scan returns every container currently present on the page.
	Scan(ctx context.Context, selector string) ([]post.Match, error)

	// StopObserve stops reporting. Stamped node keys survive so a later
	// Observe on the same page keeps identities stable.
	StopObserve(ctx context.Context) error

	// Mark paints a cosmetic state onto a container. Best effort.
	Mark(ctx context.Context, key string, status post.MarkStatus) error
}
