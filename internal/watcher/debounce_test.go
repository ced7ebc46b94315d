package watcher

import (
	"testing"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

func TestResolve_UnionByKey(t *testing.T) {
	matches := []post.Match{
		{Key: "node_1", HTML: "<div>v1</div>"},
		{Key: "node_2", HTML: "<div>a</div>"},
		{Key: "node_1", HTML: "<div>v2</div>"},
		{Key: "node_1", HTML: "<div>v3</div>"},
	}

	got := resolve(matches)
	if len(got) != 2 {
		t.Fatalf("resolve: got %d matches, want 2", len(got))
	}
	if got[0].Key != "node_1" || got[1].Key != "node_2" {
		t.Errorf("order: got %s, %s, want node_1, node_2", got[0].Key, got[1].Key)
	}
	if got[0].HTML != "<div>v3</div>" {
		t.Errorf("payload: got %q, want latest sighting", got[0].HTML)
	}
}

func TestResolve_PreservesFirstObservedOrder(t *testing.T) {
	matches := []post.Match{
		{Key: "c"}, {Key: "a"}, {Key: "b"}, {Key: "a"}, {Key: "c"},
	}

	got := resolve(matches)
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("resolve: got %d matches, want %d", len(got), len(want))
	}
	for i, key := range want {
		if got[i].Key != key {
			t.Errorf("got[%d].Key: got %q, want %q", i, got[i].Key, key)
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	if got := resolve(nil); got != nil {
		t.Errorf("resolve(nil): got %v, want nil", got)
	}
}

func TestResolve_Single(t *testing.T) {
	got := resolve([]post.Match{{Key: "only"}})
	if len(got) != 1 {
		t.Fatalf("resolve: got %d, want 1", len(got))
	}
}

func TestResolve_DoesNotAliasBuffer(t *testing.T) {
	buf := []post.Match{{Key: "a", HTML: "<div>a</div>"}}
	got := resolve(buf)

	buf[0] = post.Match{Key: "b", HTML: "<div>b</div>"}
	if got[0].Key != "a" {
		t.Errorf("resolved batch aliases the buffer: got key %q, want %q", got[0].Key, "a")
	}
}

func TestDebouncer_FlushedBatchSurvivesReuse(t *testing.T) {
	var flushed [][]post.Match
	d := newDebouncer(debounceConfig{}, func(ms []post.Match) {
		flushed = append(flushed, ms)
	})

	d.add(post.Match{Key: "a"})
	d.flush()
	d.add(post.Match{Key: "b"})
	d.flush()

	if len(flushed) != 2 {
		t.Fatalf("flushed: got %d batches, want 2", len(flushed))
	}
	if flushed[0][0].Key != "a" || flushed[1][0].Key != "b" {
		t.Errorf("batches: got %q, %q, want a, b",
			flushed[0][0].Key, flushed[1][0].Key)
	}
}

func TestDebouncer_MaxBufferFlushesImmediately(t *testing.T) {
	var flushed [][]post.Match
	d := newDebouncer(debounceConfig{MaxBuffer: 3}, func(ms []post.Match) {
		flushed = append(flushed, ms)
	})

	d.add(post.Match{Key: "a"})
	d.add(post.Match{Key: "b"})
	if len(flushed) != 0 {
		t.Fatalf("flushed before buffer full: %d batches", len(flushed))
	}
	if !d.add(post.Match{Key: "c"}) {
		t.Fatal("add at MaxBuffer: got false, want immediate flush")
	}
	if len(flushed) != 1 || len(flushed[0]) != 3 {
		t.Fatalf("flushed: got %d batches, want 1 of 3", len(flushed))
	}
	if d.timerC() != nil {
		t.Error("timerC after flush: got non-nil channel")
	}
}

func TestDebouncer_DiscardDropsBuffer(t *testing.T) {
	var calls int
	d := newDebouncer(debounceConfig{}, func([]post.Match) { calls++ })

	d.add(post.Match{Key: "a"})
	d.discard()
	d.flush()

	if calls != 0 {
		t.Errorf("flush after discard: handler called %d times, want 0", calls)
	}
	if d.timerC() != nil {
		t.Error("timerC after discard: got non-nil channel")
	}
}

func TestDebouncer_FlushEmptyIsNoop(t *testing.T) {
	var calls int
	d := newDebouncer(debounceConfig{}, func([]post.Match) { calls++ })

	d.flush()
	if calls != 0 {
		t.Errorf("flush on empty buffer: handler called %d times, want 0", calls)
	}
}
