package postwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Lallians/Linkedin-post-scrapper/export"
	"github.com/Lallians/Linkedin-post-scrapper/idgen"
	"github.com/Lallians/Linkedin-post-scrapper/post"
	"github.com/Lallians/Linkedin-post-scrapper/internal/dedup"
	"github.com/Lallians/Linkedin-post-scrapper/internal/extract"
	"github.com/Lallians/Linkedin-post-scrapper/internal/store"
	"github.com/Lallians/Linkedin-post-scrapper/internal/watcher"
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// extractor turns a container fragment into a record.
type extractor interface {
	Extract(fragment string, opts extract.Options) (*post.Record, error)
}

// Engine is the collection state machine. It owns the record buffer, the
// dedup tracker, and the debounced watcher; a PageDriver feeds it raw
// container sightings.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	driver PageDriver
	st     *store.Store
	newID  idgen.Generator

	watch *watcher.Watcher
	track *dedup.Tracker
	ext   extractor

	mu        sync.Mutex
	state     State
	gen       uint64
	obsCancel context.CancelFunc
	sessionID string
	selector  string
	extOpts   extract.Options
	records   []post.Record
}

// NewEngine builds an idle engine. st may be nil to run without
// persistence; the engine then forgets everything on restart.
func NewEngine(cfg Config, driver PageDriver, st *store.Store, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		driver:    driver,
		st:        st,
		newID:     idgen.Prefixed("exp_", idgen.Default),
		sessionID: store.DefaultSessionID,
		ext:       extract.New(),
		track:     dedup.New(),
	}
	e.watch = watcher.New(watcher.Config{
		Window:    cfg.Debounce.Window,
		MaxBuffer: cfg.Debounce.MaxBuffer,
		Logger:    logger,
	})
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Count returns the number of collected records.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Records returns a copy of the collected records in collection order.
func (e *Engine) Records() []post.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]post.Record, len(e.records))
	copy(out, e.records)
	return out
}

// Start begins collecting. Empty selector arguments fall back to the
// configured page selectors. Returns ErrAlreadyActive while a session is
// running and ErrInvalidSelector for unusable selectors.
func (e *Engine) Start(ctx context.Context, selector, contentSelector string) error {
	if selector == "" {
		selector = e.cfg.Page.Selector
	}
	if selector == "" {
		return fmt.Errorf("%w: container selector is empty", ErrInvalidSelector)
	}

	if contentSelector == "" {
		contentSelector = e.cfg.Page.ContentSelector
	}
	contentSelector, err := normalizeContentSelector(contentSelector)
	if err != nil {
		return err
	}
	contentSel, err := extract.ParseSelector(contentSelector)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSelector, contentSelector)
	}

	opts := extract.Options{
		ContentSelector: contentSel,
		Format:          e.cfg.Page.Format,
		Sanitize:        e.cfg.Page.Sanitize,
	}
	if m := e.cfg.Page.RepostMarker; m != "" {
		marker, err := extract.ParseSelector(m)
		if err != nil {
			return fmt.Errorf("%w: repost marker %q", ErrInvalidSelector, m)
		}
		opts.RepostMarker = marker
	}

	e.mu.Lock()
	if e.state == StateActive {
		e.mu.Unlock()
		return ErrAlreadyActive
	}
	// Observation must outlive the control request that started it; the
	// caller ctx only scopes the synchronous start work.
	obsCtx, obsCancel := context.WithCancel(context.Background())
	e.state = StateActive
	e.gen++
	gen := e.gen
	e.obsCancel = obsCancel
	e.selector = selector
	e.extOpts = opts
	e.mu.Unlock()

	if err := e.driver.Observe(obsCtx, selector, e.watch.Offer); err != nil {
		e.mu.Lock()
		e.state = StateIdle
		e.obsCancel = nil
		e.mu.Unlock()
		obsCancel()
		return fmt.Errorf("postwatch: observe: %w", err)
	}
	e.watch.Arm(func(matches []post.Match) { e.handleBatch(gen, matches) })

	// Containers already on the page are collected immediately; the
	// observer only reports future mutations.
	initial, err := e.driver.Scan(ctx, selector)
	if err != nil {
		e.logger.Warn("engine: initial scan failed", "error", err)
	} else {
		e.handleBatch(gen, initial)
	}

	e.persistSession(ctx, true, selector, contentSelector)
	e.logger.Info("engine: collection started", "selector", selector, "content_selector", contentSelector)
	return nil
}

// Stop ends the session. Idempotent: stopping an idle engine is a no-op.
// Collected records and logical ids are kept; node keys are forgotten so
// a fresh page can be collected in the next session.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return nil
	}
	e.state = StateIdle
	e.gen++
	obsCancel := e.obsCancel
	e.obsCancel = nil
	e.mu.Unlock()

	e.watch.Disarm()
	if obsCancel != nil {
		obsCancel()
	}
	if err := e.driver.StopObserve(ctx); err != nil {
		e.logger.Warn("engine: stop observe", "error", err)
	}
	e.track.ResetKeys()

	if e.st != nil {
		if err := e.st.SetActive(ctx, e.sessionID, false); err != nil {
			e.logger.Warn("engine: persist inactive flag", "error", err)
		}
	}

	e.logger.Info("engine: collection stopped", "records", e.Count())
	return nil
}

// Clear drops the record buffer. Logical ids already collected stay
// excluded unless dedup.reset_on_clear is set.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.records = nil
	e.mu.Unlock()

	if e.cfg.Dedup.ResetOnClear {
		e.track.Reset()
		if e.st != nil {
			if err := e.st.ClearSeen(ctx, e.sessionID); err != nil {
				e.logger.Warn("engine: clear seen ids", "error", err)
			}
		}
	}

	if e.st != nil {
		if err := e.st.SetLastCount(ctx, e.sessionID, 0); err != nil {
			e.logger.Warn("engine: persist count", "error", err)
		}
	}

	e.logger.Info("engine: records cleared", "dedup_reset", e.cfg.Dedup.ResetOnClear)
	return nil
}

// ExportCSV writes the collected records to a timestamped file in the
// export directory and returns its name. Returns ErrNothingToExport when
// the buffer is empty.
func (e *Engine) ExportCSV(ctx context.Context) (string, error) {
	records := e.Records()
	if len(records) == 0 {
		return "", ErrNothingToExport
	}

	path, err := export.WriteFile(e.cfg.Export.Dir, records, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("postwatch: export: %w", err)
	}
	filename := filepath.Base(path)

	if e.st != nil {
		exp := &store.Export{
			ID:          e.newID(),
			SessionID:   e.sessionID,
			Filename:    filename,
			RecordCount: len(records),
		}
		if err := e.st.InsertExport(ctx, exp); err != nil {
			e.logger.Warn("engine: persist export history", "error", err)
		}
	}

	e.logger.Info("engine: exported", "filename", filename, "records", len(records))
	return filename, nil
}

// Resume restores a previously active persisted session: re-seeds the
// dedup tracker from stored logical ids and restarts collection with the
// stored selectors. No-op without a store or when no session was active.
func (e *Engine) Resume(ctx context.Context) error {
	if e.st == nil {
		return nil
	}

	sess, err := e.st.GetSession(ctx, e.sessionID)
	if err != nil {
		return fmt.Errorf("postwatch: resume: %w", err)
	}
	if sess == nil || !sess.Active {
		return nil
	}

	ids, err := e.st.SeenIDs(ctx, e.sessionID)
	if err != nil {
		return fmt.Errorf("postwatch: resume seen ids: %w", err)
	}
	for _, id := range ids {
		e.track.MarkSeen(id)
	}

	e.logger.Info("engine: resuming session", "selector", sess.Selector, "seen_ids", len(ids))
	return e.Start(ctx, sess.Selector, sess.ContentSelector)
}

// handleBatch processes one debounced window of container sightings. It
// runs on the watcher goroutine; per-node work that can retry is pushed
// onto timers so a slow node never blocks the window.
func (e *Engine) handleBatch(gen uint64, matches []post.Match) {
	for _, m := range matches {
		e.attempt(gen, m, 1)
	}
}

// attempt extracts one container, scheduling a delayed retry on failure
// until the per-node budget is spent. Retries abort silently when the
// session that scheduled them has ended. The dedup accept happens under
// the same lock as the liveness check, so a window firing after Stop can
// never mark a node seen without collecting it.
func (e *Engine) attempt(gen uint64, m post.Match, try int) {
	e.mu.Lock()
	if e.state != StateActive || e.gen != gen {
		e.mu.Unlock()
		return
	}
	if try == 1 && !e.track.ShouldProcess(m.Key, m.LogicalID) {
		e.mu.Unlock()
		return
	}
	opts := e.extOpts
	e.mu.Unlock()

	ctx := context.Background()

	rec, err := e.ext.Extract(m.HTML, opts)
	if errors.Is(err, extract.ErrRepost) {
		if merr := e.driver.Mark(ctx, m.Key, post.MarkExcluded); merr != nil {
			e.logger.Debug("engine: mark excluded", "key", m.Key, "error", merr)
		}
		e.logger.Debug("engine: repost skipped", "key", m.Key)
		return
	}
	if err != nil {
		if try >= e.cfg.Retry.Attempts {
			e.logger.Error("engine: extraction failed, budget spent",
				"key", m.Key, "attempts", try, "error", err)
			if merr := e.driver.Mark(ctx, m.Key, post.MarkExcluded); merr != nil {
				e.logger.Debug("engine: mark excluded", "key", m.Key, "error", merr)
			}
			return
		}
		e.logger.Warn("engine: extraction failed, retrying",
			"key", m.Key, "attempt", try, "error", err)
		time.AfterFunc(e.cfg.Retry.Delay, func() { e.attempt(gen, m, try+1) })
		return
	}

	e.mu.Lock()
	e.records = append(e.records, *rec)
	count := len(e.records)
	e.mu.Unlock()

	if merr := e.driver.Mark(ctx, m.Key, post.MarkProcessed); merr != nil {
		e.logger.Debug("engine: mark processed", "key", m.Key, "error", merr)
	}

	if e.st != nil {
		if err := e.st.AddSeen(ctx, e.sessionID, rec.ID); err != nil {
			e.logger.Warn("engine: persist seen id", "error", err)
		}
		if err := e.st.SetLastCount(ctx, e.sessionID, count); err != nil {
			e.logger.Warn("engine: persist count", "error", err)
		}
	}

	e.logger.Debug("engine: record collected", "key", m.Key, "id", rec.ID, "count", count)
}

func (e *Engine) persistSession(ctx context.Context, active bool, selector, contentSelector string) {
	if e.st == nil {
		return
	}
	sess := &store.Session{
		SessionID:       e.sessionID,
		Active:          active,
		PageURL:         e.cfg.Page.URL,
		Selector:        selector,
		ContentSelector: contentSelector,
		LastCount:       e.Count(),
	}
	if err := e.st.SaveSession(ctx, sess); err != nil {
		e.logger.Warn("engine: persist session", "error", err)
	}
}

var bareToken = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// normalizeContentSelector accepts either a class selector (".body") or a
// bare class name ("body", promoted to ".body"). Anything with an interior
// dot is ambiguous and rejected.
func normalizeContentSelector(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: content selector is empty", ErrInvalidSelector)
	}

	if strings.HasPrefix(s, ".") {
		if !bareToken.MatchString(s[1:]) {
			return "", fmt.Errorf("%w: %q", ErrInvalidSelector, s)
		}
		return s, nil
	}
	if !bareToken.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSelector, s)
	}
	return "." + s, nil
}
