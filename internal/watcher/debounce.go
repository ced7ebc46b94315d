package watcher

import (
	"time"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

// debounceConfig controls the batching behaviour.
type debounceConfig struct {
	// Window is the quiet period before a flush. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many matches accumulate. Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer collects raw matches and emits resolved batches when the
// window expires or the buffer fills.
type debouncer struct {
	cfg     debounceConfig
	matches []post.Match
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]post.Match)
}

func newDebouncer(cfg debounceConfig, flushFn func([]post.Match)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		matches: make([]post.Match, 0, cfg.MaxBuffer),
		flushFn: flushFn,
	}
}

// add pushes a match into the buffer. Returns true if an immediate flush
// was triggered (buffer full).
func (d *debouncer) add(m post.Match) bool {
	d.matches = append(d.matches, m)

	if len(d.matches) >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	// (Re)start the window timer.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC returns the channel that fires when the debounce window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush resolves and emits the buffered matches, then resets.
func (d *debouncer) flush() {
	if len(d.matches) == 0 {
		return
	}

	resolved := resolve(d.matches)
	d.flushFn(resolved)

	d.matches = d.matches[:0]
	d.stopTimer()
}

// discard drops everything buffered without emitting. Used on disarm so
// a pending window never fires after the caller asked to stop.
func (d *debouncer) discard() {
	d.matches = d.matches[:0]
	d.stopTimer()
}

func (d *debouncer) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}

// resolve unions the buffered matches by node key: each key appears once,
// in first-observed order, carrying the most recent payload seen for it
// within the window. Always returns a fresh slice; the buffer is reused
// across windows and handlers may hold on to what they were given.
func resolve(matches []post.Match) []post.Match {
	if len(matches) == 0 {
		return nil
	}

	index := make(map[string]int, len(matches))
	result := make([]post.Match, 0, len(matches))

	for _, m := range matches {
		if i, ok := index[m.Key]; ok {
			result[i] = m
			continue
		}
		index[m.Key] = len(result)
		result = append(result, m)
	}

	return result
}
