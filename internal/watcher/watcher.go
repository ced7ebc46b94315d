// Package watcher turns a stream of raw container sightings into
// debounced, per-window batches. Mutation bursts on a feed page arrive
// dozens at a time; the watcher absorbs them and hands the collection
// engine one resolved batch per quiet period.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

// Handler receives one resolved batch per debounce window. It runs on the
// watcher's loop goroutine; slow handlers delay the next window.
type Handler func(matches []post.Match)

// Config for creating a Watcher.
type Config struct {
	Window    time.Duration
	MaxBuffer int
	Logger    *slog.Logger
}

// Watcher owns the debounce loop between a raw match source and a Handler.
// It is inert until Arm is called and silent again after Disarm.
type Watcher struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	armed   bool
	cancel  context.CancelFunc
	rawCh   chan post.Match
	dropped uint64
}

// New creates a disarmed Watcher.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{cfg: cfg, logger: cfg.Logger}
}

// Arm installs the handler and starts the debounce loop. Calling Arm on an
// already armed watcher is a no-op.
func (w *Watcher) Arm(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.armed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.rawCh = make(chan post.Match, 4096)
	w.armed = true

	d := newDebouncer(debounceConfig{
		Window:    w.cfg.Window,
		MaxBuffer: w.cfg.MaxBuffer,
	}, handler)

	go w.loop(ctx, w.rawCh, d)
}

// Disarm stops the loop and drops anything buffered, including a pending
// window that has not fired yet. Idempotent.
func (w *Watcher) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed {
		return
	}
	w.armed = false
	w.cancel()
	w.cancel = nil
	w.rawCh = nil
}

// Armed reports whether the watcher is currently collecting.
func (w *Watcher) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Offer feeds a raw sighting into the current window. Offers while
// disarmed are dropped, as are offers that would block a full channel;
// the debouncer's MaxBuffer makes sustained overflow unlikely.
func (w *Watcher) Offer(m post.Match) {
	w.mu.Lock()
	ch := w.rawCh
	w.mu.Unlock()

	if ch == nil {
		return
	}
	select {
	case ch <- m:
	default:
		w.mu.Lock()
		w.dropped++
		n := w.dropped
		w.mu.Unlock()
		w.logger.Warn("watcher: raw channel full, match dropped", "key", m.Key, "total_dropped", n)
	}
}

// loop reads raw matches and drives the debounce window until cancelled.
func (w *Watcher) loop(ctx context.Context, rawCh <-chan post.Match, d *debouncer) {
	for {
		select {
		case <-ctx.Done():
			d.discard()
			return

		case m := <-rawCh:
			d.add(m)

		case <-d.timerC():
			d.flush()
		}
	}
}
