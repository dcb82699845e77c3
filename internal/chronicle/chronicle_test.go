package chronicle

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

func newTestStore(t *testing.T) (*Store, *vault.Layout) {
	t.Helper()
	layout := vault.NewLayout(t.TempDir())
	return NewStore(layout), layout
}

func TestRecordInsight(t *testing.T) {
	s, layout := newTestStore(t)

	id, err := s.RecordInsight("pattern X beats pattern Y", "debugging", "sess-001", 0.8, "code review", nil)
	if err != nil {
		t.Fatalf("record insight: %v", err)
	}
	if !strings.HasPrefix(id, "ins_") {
		t.Errorf("expected ins_ prefix, got %q", id)
	}

	path := filepath.Join(layout.InsightsDir(), "debugging", "sess-001"+vault.Ext)
	lines, err := vault.ReadLines(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Fields["type"] != model.TypeInsight {
		t.Errorf("expected type insight, got %v", lines[0].Fields["type"])
	}
	if lines[0].Fields["content"] != "pattern X beats pattern Y" {
		t.Errorf("unexpected content: %v", lines[0].Fields["content"])
	}

	// Appends accumulate, never overwrite.
	if _, err := s.RecordInsight("second", "debugging", "sess-001", 0.2, "", nil); err != nil {
		t.Fatalf("second insight: %v", err)
	}
	lines, _ = vault.ReadLines(path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after second append, got %d", len(lines))
	}
}

func TestRecordInsightValidation(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.RecordInsight("", "debugging", "sess-001", 0.5, "", nil); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := s.RecordInsight("x", "debugging", "sess-001", 1.5, "", nil); err == nil {
		t.Error("expected error for intensity above 1")
	}
	if _, err := s.RecordInsight("x", "", "sess-001", 0.5, "", nil); err == nil {
		t.Error("expected error for empty domain")
	}
}

func TestAppendEventFlattensPayload(t *testing.T) {
	s, layout := newTestStore(t)

	id, err := s.Append("file_write", map[string]any{"path": "main.go", "type": "ignored"}, "sess-001")
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
	if !strings.HasPrefix(id, "evt_") {
		t.Errorf("expected evt_ prefix, got %q", id)
	}

	path := filepath.Join(layout.EventsDir(), "sess-001", time.Now().UTC().Format("20060102")+vault.Ext)
	lines, err := vault.ReadLines(path)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 event, got %d", len(lines))
	}
	if lines[0].Fields["path"] != "main.go" {
		t.Errorf("payload field not flattened: %v", lines[0].Fields)
	}
	// Envelope wins payload key collisions.
	if lines[0].Fields["type"] != "file_write" {
		t.Errorf("expected envelope type to win, got %v", lines[0].Fields["type"])
	}
}

func TestRecordLearningPartitionName(t *testing.T) {
	s, layout := newTestStore(t)

	id, err := s.RecordLearning("Used SQLite for indexing", "flat files were the requirement", "keep derived state reconstructible", "sess-002", []string{"schema drift"})
	if err != nil {
		t.Fatalf("record learning: %v", err)
	}
	if !strings.HasPrefix(id, "learn_") {
		t.Errorf("expected learn_ prefix, got %q", id)
	}

	matches, _ := filepath.Glob(filepath.Join(layout.MistakesDir(), "sess-002_used_sqlite*"+vault.Ext))
	if len(matches) != 1 {
		t.Fatalf("expected 1 mistake partition, got %v", matches)
	}
}

func TestRecordValue(t *testing.T) {
	s, layout := newTestStore(t)

	if err := s.RecordValue("files over databases", "chose NDJSON for the index", "important", "sess-003"); err != nil {
		t.Fatalf("record value: %v", err)
	}
	lines, err := vault.ReadLines(filepath.Join(layout.ValuesDir(), "sess-003"+vault.Ext))
	if err != nil {
		t.Fatalf("read values: %v", err)
	}
	if len(lines) != 1 || lines[0].Fields["weight"] != "important" {
		t.Fatalf("unexpected values partition: %v", lines)
	}

	if err := s.RecordValue("x", "y", "enormous", "sess-003"); err == nil {
		t.Error("expected error for invalid weight")
	}
}

func TestSnapshotLatest(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.CreateSnapshot("sess-a", map[string]any{"step": float64(1)}); err != nil {
		t.Fatalf("snapshot a: %v", err)
	}
	id, err := s.CreateSnapshot("sess-b", map[string]any{"step": float64(2)})
	if err != nil {
		t.Fatalf("snapshot b: %v", err)
	}

	// Per-session lookup.
	snap, err := s.GetLatestSnapshot("sess-b")
	if err != nil {
		t.Fatalf("latest for session: %v", err)
	}
	if snap == nil || snap.SnapshotID != id {
		t.Fatalf("expected snapshot %s, got %+v", id, snap)
	}
	if snap.State["step"] != float64(2) {
		t.Errorf("state not preserved: %v", snap.State)
	}

	// Global pointer tracks the most recent write across sessions.
	snap, err = s.GetLatestSnapshot("")
	if err != nil {
		t.Fatalf("global latest: %v", err)
	}
	if snap == nil || snap.SessionID != "sess-b" {
		t.Fatalf("expected sess-b via pointer, got %+v", snap)
	}
}

func TestSnapshotAbsent(t *testing.T) {
	s, _ := newTestStore(t)

	snap, err := s.GetLatestSnapshot("nope")
	if err != nil || snap != nil {
		t.Fatalf("expected nil, nil for absent session, got %+v, %v", snap, err)
	}
	snap, err = s.GetLatestSnapshot("")
	if err != nil || snap != nil {
		t.Fatalf("expected nil, nil with no pointer, got %+v, %v", snap, err)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Used SQLite for indexing": "used_sqlite_for_indexing",
		" Mixed CASE-and-dash ":    "_mixed_case_and_dash_",
		"punct!uation? gone":       "punctuation_gone",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
	if got := slugify(strings.Repeat("a", 50)); len(got) != 30 {
		t.Errorf("expected 30-char cap, got %d", len(got))
	}
}
