package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

//go:embed collector.js
var collectorJS []byte

const bindingName = "__postwatch_binding"

// Driver runs the injected collection script on a Tab and relays its
// sightings back as post.Match values.
type Driver struct {
	tab    *Tab
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewDriver wraps a tab. The driver is idle until Observe is called.
func NewDriver(tab *Tab, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{tab: tab, logger: logger}
}

// Observe injects the collection script configured for selector and
// routes every sighting to offer. Must be called before Scan.
func (d *Driver) Observe(ctx context.Context, selector string, offer func(post.Match)) error {
	page := d.tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}.Call(page)); err != nil {
		d.logger.Warn("browser: addBinding failed (may already exist)", "error", err)
	}

	// The binding listener lives for the whole observation session; ctx
	// only scopes the injection calls below. StopObserve tears it down.
	listenCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.listenBinding(listenCtx, offer)

	cfgJSON, _ := json.Marshal(map[string]string{"selector": selector})
	if _, err := page.Context(ctx).Eval(fmt.Sprintf("window.__postwatch_config = %s;", cfgJSON)); err != nil {
		cancel()
		return fmt.Errorf("browser: set collector config: %w", err)
	}

	if _, err := page.Context(ctx).Eval(string(collectorJS)); err != nil {
		cancel()
		return fmt.Errorf("browser: inject collector.js: %w", err)
	}

	d.logger.Debug("browser: collector injected", "url", d.tab.PageURL, "selector", selector)
	return nil
}

// Scan returns every container currently present on the page, stamping
// keys on any not yet seen. Requires a prior Observe.
func (d *Driver) Scan(ctx context.Context, selector string) ([]post.Match, error) {
	res, err := d.tab.Page.Context(ctx).Eval(`() => window.__postwatch.scan()`)
	if err != nil {
		return nil, fmt.Errorf("browser: scan: %w", err)
	}
	return parseSightings([]byte(res.Value.Str()))
}

// StopObserve disconnects the in-page observer and stops the binding
// listener. The stamped keys stay on the page so a later Observe on the
// same tab sees the same identities.
func (d *Driver) StopObserve(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	_, err := d.tab.Page.Context(ctx).Eval(`() => {
		if (window.__postwatch) { window.__postwatch.stop(); }
	}`)
	if err != nil {
		return fmt.Errorf("browser: stop collector: %w", err)
	}
	return nil
}

// Mark paints a visual state onto a container. Failures are cosmetic and
// reported, not fatal.
func (d *Driver) Mark(ctx context.Context, key string, status post.MarkStatus) error {
	color := "limegreen"
	if status == post.MarkExcluded {
		color = "orange"
	}

	_, err := d.tab.Page.Context(ctx).Eval(
		`(key, color) => window.__postwatch.mark(key, color)`, key, color)
	if err != nil {
		return fmt.Errorf("browser: mark %s: %w", key, err)
	}
	return nil
}

// listenBinding receives sightings from the injected script via
// Runtime.bindingCalled.
func (d *Driver) listenBinding(ctx context.Context, offer func(post.Match)) {
	page := d.tab.Page
	page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		matches, err := parseSightings([]byte(e.Payload))
		if err != nil {
			d.logger.Warn("browser: parse binding payload", "error", err)
			return
		}
		for _, m := range matches {
			offer(m)
		}
	})()
}

func parseSightings(payload []byte) ([]post.Match, error) {
	var sightings []struct {
		Key       string `json:"key"`
		LogicalID string `json:"logical_id"`
		HTML      string `json:"html"`
	}
	if err := json.Unmarshal(payload, &sightings); err != nil {
		return nil, fmt.Errorf("browser: decode sightings: %w", err)
	}

	matches := make([]post.Match, 0, len(sightings))
	for _, s := range sightings {
		matches = append(matches, post.Match{Key: s.Key, LogicalID: s.LogicalID, HTML: s.HTML})
	}
	return matches, nil
}
