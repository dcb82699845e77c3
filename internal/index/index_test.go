package index

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rcliao/agent-chronicle/internal/chronicle"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

func newTestBuilder(t *testing.T) (*Builder, *chronicle.Store, *vault.Layout) {
	t.Helper()
	layout := vault.NewLayout(t.TempDir())
	return NewBuilder(layout), chronicle.NewStore(layout), layout
}

func TestRebuildAndSearch(t *testing.T) {
	b, s, _ := newTestBuilder(t)

	s.RecordInsight("binary search beats linear scanning", "algorithms", "sess-1", 0.8, "", nil)
	s.RecordInsight("profile before optimizing", "performance", "sess-2", 0.6, "", nil)

	stats, err := b.Rebuild()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if stats.FilesScanned != 2 {
		t.Errorf("expected 2 files scanned, got %d", stats.FilesScanned)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 entries, got %d", stats.TotalEntries)
	}
	if stats.SessionsIndexed != 2 || stats.DomainsIndexed != 2 {
		t.Errorf("unexpected session/domain counts: %+v", stats)
	}

	files, err := b.Search("binary")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(files) != 1 || files[0] != "insights/algorithms/sess-1.ndjson" {
		t.Fatalf("unexpected posting: %v", files)
	}

	// Lookup is case-insensitive; the index stores lower-cased terms.
	files, _ = b.Search("BINARY")
	if len(files) != 1 {
		t.Errorf("expected case-insensitive lookup, got %v", files)
	}

	// Short tokens are never indexed.
	files, _ = b.Search("the")
	if len(files) != 0 {
		t.Errorf("expected no posting for short token, got %v", files)
	}

	files, _ = b.Search("nonexistent")
	if len(files) != 0 {
		t.Errorf("expected empty list for unknown term, got %v", files)
	}
}

func TestRebuildSkipsMalformedLines(t *testing.T) {
	b, s, layout := newTestBuilder(t)

	s.RecordInsight("valid entry survives corruption", "debugging", "sess-1", 0.5, "", nil)

	path := filepath.Join(layout.InsightsDir(), "debugging", "sess-1"+vault.Ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open partition: %v", err)
	}
	f.WriteString("this is not json\n")
	f.Close()

	stats, err := b.Rebuild()
	if err != nil {
		t.Fatalf("rebuild with corrupt line: %v", err)
	}
	if stats.LinesSkipped != 1 {
		t.Errorf("expected 1 skipped line, got %d", stats.LinesSkipped)
	}
	if stats.TotalEntries != 1 {
		t.Errorf("expected 1 indexed entry, got %d", stats.TotalEntries)
	}
}

func TestRebuildReconstructible(t *testing.T) {
	b, s, layout := newTestBuilder(t)

	s.RecordInsight("indexes are derived state", "architecture", "sess-1", 0.9, "", nil)
	s.RecordLearning("trusted a stale cache", "index drifted from source", "rebuild from partitions", "sess-2", nil)

	first, err := b.Rebuild()
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	doc1, err := os.ReadFile(b.invertedPath())
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	// Losing the cache entirely loses nothing.
	if err := os.RemoveAll(layout.CacheDir()); err != nil {
		t.Fatalf("remove cache: %v", err)
	}
	second, err := b.Rebuild()
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	doc2, err := os.ReadFile(b.invertedPath())
	if err != nil {
		t.Fatalf("read rebuilt index: %v", err)
	}

	if *first != *second {
		t.Errorf("stats diverged: %+v vs %+v", first, second)
	}
	if !bytes.Equal(doc1, doc2) {
		t.Error("rebuilt index differs from original")
	}
}

func TestKeywordsDedupedPerRecord(t *testing.T) {
	b, s, _ := newTestBuilder(t)

	s.RecordInsight("retry retry retry until backoff", "networking", "sess-1", 0.5, "", nil)

	if _, err := b.Rebuild(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	var inverted map[string]TermEntry
	if err := vault.ReadDoc(b.invertedPath(), &inverted); err != nil {
		t.Fatalf("read index doc: %v", err)
	}
	entry, ok := inverted["retry"]
	if !ok {
		t.Fatal("expected retry posting")
	}
	if entry.Frequency != 1 {
		t.Errorf("expected per-record frequency 1, got %d", entry.Frequency)
	}
}

func TestStatsWithoutCache(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	stats, err := b.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Status != "no_cache" {
		t.Errorf("expected no_cache, got %q", stats.Status)
	}

	files, err := b.Search("anything")
	if err != nil {
		t.Fatalf("search without cache: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty result without cache, got %v", files)
	}
}
