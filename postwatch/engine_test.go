package postwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lallians/Linkedin-post-scrapper/dbopen"
	"github.com/Lallians/Linkedin-post-scrapper/post"
	"github.com/Lallians/Linkedin-post-scrapper/internal/extract"
	"github.com/Lallians/Linkedin-post-scrapper/internal/store"
	_ "modernc.org/sqlite"
)

// fakeDriver is an in-memory PageDriver: Scan returns a fixed set of
// containers and Observe hands the offer function back to the test.
type fakeDriver struct {
	mu       sync.Mutex
	scan     []post.Match
	offer    func(post.Match)
	ctx      context.Context
	observed string
	stops    int
	marks    map[string]post.MarkStatus
}

func newFakeDriver(scan ...post.Match) *fakeDriver {
	return &fakeDriver{scan: scan, marks: make(map[string]post.MarkStatus)}
}

func (d *fakeDriver) Observe(ctx context.Context, selector string, offer func(post.Match)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
	d.observed = selector
	d.offer = offer
	return nil
}

func (d *fakeDriver) observeCtx() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

func (d *fakeDriver) Scan(context.Context, string) ([]post.Match, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scan, nil
}

func (d *fakeDriver) StopObserve(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDriver) Mark(_ context.Context, key string, status post.MarkStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marks[key] = status
	return nil
}

func (d *fakeDriver) markOf(key string) post.MarkStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.marks[key]
}

func (d *fakeDriver) push(m post.Match) {
	d.mu.Lock()
	offer := d.offer
	d.mu.Unlock()
	offer(m)
}

func container(key, id, text string) post.Match {
	html := `<div class="feed-item" data-id="` + id + `"><div class="body">` + text + `</div></div>`
	return post.Match{Key: key, LogicalID: id, HTML: html}
}

func testConfig() Config {
	return Config{
		Page:     PageConfig{Selector: ".feed-item", ContentSelector: "body"},
		Debounce: DebounceConfig{Window: 10 * time.Millisecond},
	}
}

func waitForCount(t *testing.T, e *Engine, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", e.Count(), want)
}

func TestEngine_InitialScanDeduplicates(t *testing.T) {
	d := newFakeDriver(
		container("node_1", "urn:1", "first"),
		container("node_2", "urn:2", "second"),
		container("node_3", "urn:1", "first again"),
	)
	e := NewEngine(testConfig(), d, nil, nil)

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	if got := e.Count(); got != 2 {
		t.Fatalf("Count after initial scan: got %d, want 2", got)
	}

	recs := e.Records()
	if recs[0].Text != "first" || recs[1].Text != "second" {
		t.Errorf("records: got %q, %q", recs[0].Text, recs[1].Text)
	}
	if d.markOf("node_1") != post.MarkProcessed {
		t.Errorf("node_1 mark: got %q", d.markOf("node_1"))
	}
	if d.markOf("node_3") != "" {
		t.Errorf("node_3 (duplicate) was marked: %q", d.markOf("node_3"))
	}
}

func TestEngine_StartWhileActive(t *testing.T) {
	e := NewEngine(testConfig(), newFakeDriver(), nil, nil)

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	if err := e.Start(context.Background(), "", ""); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start: got %v, want ErrAlreadyActive", err)
	}
}

func TestEngine_StartEmptySelector(t *testing.T) {
	cfg := testConfig()
	cfg.Page.Selector = ""
	e := NewEngine(cfg, newFakeDriver(), nil, nil)

	if err := e.Start(context.Background(), "", ""); !errors.Is(err, ErrInvalidSelector) {
		t.Fatalf("Start: got %v, want ErrInvalidSelector", err)
	}
	if e.State() != StateIdle {
		t.Errorf("State: got %v, want idle", e.State())
	}
}

func TestEngine_MutationBatch(t *testing.T) {
	d := newFakeDriver()
	e := NewEngine(testConfig(), d, nil, nil)

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	d.push(container("node_1", "urn:1", "streamed"))
	d.push(container("node_1", "urn:1", "streamed v2"))
	d.push(container("node_2", "urn:2", "other"))

	waitForCount(t, e, 2)

	recs := e.Records()
	// Same node twice within the window resolves to its latest payload.
	if recs[0].Text != "streamed v2" {
		t.Errorf("records[0].Text: got %q, want %q", recs[0].Text, "streamed v2")
	}
}

func TestEngine_ObserveOutlivesStartContext(t *testing.T) {
	d := newFakeDriver()
	e := NewEngine(testConfig(), d, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The control request that started the session ends here.
	cancel()

	if err := d.observeCtx().Err(); err != nil {
		t.Fatalf("observe context after start request ended: %v", err)
	}

	d.push(container("node_1", "urn:1", "late arrival"))
	waitForCount(t, e, 1)

	e.Stop(context.Background())
	if d.observeCtx().Err() == nil {
		t.Error("observe context still alive after Stop")
	}
}

func TestEngine_LateWindowAfterStopDoesNotPoisonDedup(t *testing.T) {
	d := newFakeDriver()
	e := NewEngine(testConfig(), d, nil, nil)
	ctx := context.Background()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A window in flight when Stop ran delivers its batch late. Nothing
	// may be collected, and nothing may be remembered as seen.
	e.handleBatch(gen, []post.Match{container("node_1", "urn:1", "missed")})
	if got := e.Count(); got != 0 {
		t.Fatalf("Count after stale batch: got %d, want 0", got)
	}

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop(ctx)

	d.push(container("node_1", "urn:1", "missed"))
	waitForCount(t, e, 1)
}

func TestEngine_StopIdempotent(t *testing.T) {
	d := newFakeDriver()
	e := NewEngine(testConfig(), d, nil, nil)

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on idle engine: %v", err)
	}

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if d.stops != 1 {
		t.Errorf("StopObserve calls: got %d, want 1", d.stops)
	}
}

func TestEngine_DedupSurvivesSessions(t *testing.T) {
	d := newFakeDriver(container("node_1", "urn:1", "post"))
	e := NewEngine(testConfig(), d, nil, nil)
	ctx := context.Background()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Fresh page load: new node key, same logical id.
	d.mu.Lock()
	d.scan = []post.Match{container("node_9", "urn:1", "post")}
	d.mu.Unlock()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop(ctx)

	if got := e.Count(); got != 1 {
		t.Errorf("Count after restart: got %d, want 1 (logical id already collected)", got)
	}
}

func TestEngine_ClearKeepsDedup(t *testing.T) {
	d := newFakeDriver(container("node_1", "urn:1", "post"))
	e := NewEngine(testConfig(), d, nil, nil)
	ctx := context.Background()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := e.Count(); got != 0 {
		t.Fatalf("Count after clear: got %d, want 0", got)
	}
	e.Stop(ctx)

	d.mu.Lock()
	d.scan = []post.Match{container("node_2", "urn:1", "post")}
	d.mu.Unlock()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop(ctx)

	if got := e.Count(); got != 0 {
		t.Errorf("Count: got %d, want 0 (clear does not reset dedup)", got)
	}
}

func TestEngine_ClearResetsDedupWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Dedup.ResetOnClear = true

	d := newFakeDriver(container("node_1", "urn:1", "post"))
	e := NewEngine(cfg, d, nil, nil)
	ctx := context.Background()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Clear(ctx)
	e.Stop(ctx)

	d.mu.Lock()
	d.scan = []post.Match{container("node_2", "urn:1", "post")}
	d.mu.Unlock()

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop(ctx)

	if got := e.Count(); got != 1 {
		t.Errorf("Count: got %d, want 1 (reset_on_clear recollects)", got)
	}
}

func TestEngine_RepostExcluded(t *testing.T) {
	cfg := testConfig()
	cfg.Page.RepostMarker = ".shared-header"

	repost := post.Match{
		Key:       "node_1",
		LogicalID: "urn:1",
		HTML:      `<div class="feed-item" data-id="urn:1"><div class="shared-header">Reposted</div><div class="body">x</div></div>`,
	}
	d := newFakeDriver(repost, container("node_2", "urn:2", "original"))
	e := NewEngine(cfg, d, nil, nil)

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	if got := e.Count(); got != 1 {
		t.Fatalf("Count: got %d, want 1 (repost excluded)", got)
	}
	if d.markOf("node_1") != post.MarkExcluded {
		t.Errorf("repost mark: got %q, want excluded", d.markOf("node_1"))
	}
}

// flakyExtractor fails its first failures calls, then delegates.
type flakyExtractor struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    *extract.Extractor
}

func (f *flakyExtractor) Extract(fragment string, opts extract.Options) (*post.Record, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()

	if calls <= f.failures {
		return nil, errors.New("transient extraction failure")
	}
	return f.inner.Extract(fragment, opts)
}

func (f *flakyExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForMark(t *testing.T, d *fakeDriver, key string, want post.MarkStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.markOf(key) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("mark of %s: got %q, want %q", key, d.markOf(key), want)
}

func TestEngine_RetrySucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = RetryConfig{Attempts: 3, Delay: 5 * time.Millisecond}

	d := newFakeDriver()
	e := NewEngine(cfg, d, nil, nil)
	fx := &flakyExtractor{failures: 1, inner: extract.New()}
	e.ext = fx

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	d.push(container("node_1", "urn:1", "eventually"))
	waitForCount(t, e, 1)

	if d.markOf("node_1") != post.MarkProcessed {
		t.Errorf("mark: got %q, want processed", d.markOf("node_1"))
	}
	if got := fx.callCount(); got != 2 {
		t.Errorf("extraction calls: got %d, want 2", got)
	}
}

func TestEngine_RetryBudgetExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = RetryConfig{Attempts: 2, Delay: 2 * time.Millisecond}

	d := newFakeDriver()
	e := NewEngine(cfg, d, nil, nil)
	fx := &flakyExtractor{failures: 100, inner: extract.New()}
	e.ext = fx

	if err := e.Start(context.Background(), "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	d.push(container("node_1", "urn:1", "never"))
	waitForMark(t, d, "node_1", post.MarkExcluded)

	if got := e.Count(); got != 0 {
		t.Errorf("Count: got %d, want 0", got)
	}
	if got := fx.callCount(); got != 2 {
		t.Errorf("extraction calls: got %d, want 2 (budget)", got)
	}
}

func TestEngine_RetryAbortsAfterStop(t *testing.T) {
	cfg := testConfig()
	cfg.Retry = RetryConfig{Attempts: 10, Delay: 20 * time.Millisecond}

	d := newFakeDriver()
	e := NewEngine(cfg, d, nil, nil)
	fx := &flakyExtractor{failures: 100, inner: extract.New()}
	e.ext = fx

	ctx := context.Background()
	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	d.push(container("node_1", "urn:1", "doomed"))
	deadline := time.Now().Add(2 * time.Second)
	for fx.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if fx.callCount() == 0 {
		t.Fatal("extraction never attempted")
	}

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Let any attempt that slipped in before the stop settle, then make
	// sure no further retry fires.
	time.Sleep(30 * time.Millisecond)
	calls := fx.callCount()
	time.Sleep(80 * time.Millisecond)

	if got := fx.callCount(); got != calls {
		t.Errorf("extraction calls after Stop: got %d, want %d", got, calls)
	}
	if got := e.Count(); got != 0 {
		t.Errorf("Count: got %d, want 0", got)
	}
}

func TestEngine_ExportCSV(t *testing.T) {
	cfg := testConfig()
	cfg.Export.Dir = t.TempDir()

	d := newFakeDriver(container("node_1", "urn:1", "exported post"))
	e := NewEngine(cfg, d, nil, nil)
	ctx := context.Background()

	if _, err := e.ExportCSV(ctx); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("ExportCSV on empty buffer: got %v, want ErrNothingToExport", err)
	}

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(ctx)

	filename, err := e.ExportCSV(ctx)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if !strings.HasPrefix(filename, "posts_export_") || !strings.HasSuffix(filename, ".csv") {
		t.Errorf("filename: got %q", filename)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Export.Dir, filename))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "exported post") {
		t.Errorf("export content: %q", data)
	}
}

func TestEngine_PersistenceAndResume(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := &store.Store{DB: db}
	ctx := context.Background()

	d := newFakeDriver(container("node_1", "urn:1", "persisted"))
	e := NewEngine(testConfig(), d, st, nil)

	if err := e.Start(ctx, "", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess, err := st.GetSession(ctx, store.DefaultSessionID)
	if err != nil || sess == nil {
		t.Fatalf("GetSession: %v, %v", sess, err)
	}
	if !sess.Active || sess.Selector != ".feed-item" {
		t.Errorf("persisted session: %+v", sess)
	}
	if sess.ContentSelector != ".body" {
		t.Errorf("persisted content selector: got %q, want %q", sess.ContentSelector, ".body")
	}

	// Simulate a restart: new engine, same store, same page re-scanned
	// with fresh node keys.
	d2 := newFakeDriver(
		container("node_7", "urn:1", "persisted"),
		container("node_8", "urn:2", "new post"),
	)
	e2 := NewEngine(testConfig(), d2, st, nil)
	if err := e2.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	defer e2.Stop(ctx)

	if e2.State() != StateActive {
		t.Fatalf("State after resume: got %v, want active", e2.State())
	}
	// urn:1 was already collected before the restart.
	if got := e2.Count(); got != 1 {
		t.Errorf("Count after resume: got %d, want 1", got)
	}
}

func TestEngine_ResumeWithoutActiveSession(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := &store.Store{DB: db}

	e := NewEngine(testConfig(), newFakeDriver(), st, nil)
	if err := e.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if e.State() != StateIdle {
		t.Errorf("State: got %v, want idle", e.State())
	}
}

func TestNormalizeContentSelector(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "foo", want: ".foo"},
		{in: ".bar", want: ".bar"},
		{in: "  body  ", want: ".body"},
		{in: "update-text_v2", want: ".update-text_v2"},
		{in: "", wantErr: true},
		{in: "bar.baz", wantErr: true},
		{in: ".bar.baz", wantErr: true},
		{in: "div > span", wantErr: true},
		{in: "#id", wantErr: true},
	}

	for _, tt := range tests {
		got, err := normalizeContentSelector(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSelector) {
				t.Errorf("normalizeContentSelector(%q): got err %v, want ErrInvalidSelector", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeContentSelector(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeContentSelector(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
