package syncer

import (
	"context"
	"fmt"
	"testing"

	"github.com/rcliao/agent-chronicle/internal/config"
)

func testTiers() config.Tiers {
	return config.Tiers{
		NeverSync:      []string{"technical/api_keys", "spiral/state.json"},
		AlwaysSync:     []string{"experiential"},
		SyncWithReview: []string{"relational"},
	}
}

func newTestRouter(t *testing.T, backend Backend) *Router {
	t.Helper()
	name := ""
	if backend != nil {
		name = "fake"
	}
	r, err := NewRouter(t.TempDir(), testTiers(), backend, name)
	if err != nil {
		t.Fatalf("create router: %v", err)
	}
	return r
}

// fakeBackend keeps pushed and remote content in maps.
type fakeBackend struct {
	remote map[string][]byte
	pushed map[string][]byte
	fail   map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		remote: map[string][]byte{},
		pushed: map[string][]byte{},
		fail:   map[string]bool{},
	}
}

func (f *fakeBackend) Push(ctx context.Context, key string, content []byte) error {
	if f.fail[key] {
		return fmt.Errorf("push rejected")
	}
	f.pushed[key] = content
	f.remote[key] = content
	return nil
}

func (f *fakeBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f.remote[key], nil
}

func TestClassifyTier(t *testing.T) {
	r := newTestRouter(t, nil)

	cases := map[string]Tier{
		"technical/api_keys/prod.ndjson":  TierNeverSync,
		"spiral/state.json":               TierNeverSync,
		"experiential/insights/a.ndjson":  TierAlwaysSync,
		"relational/values/core.ndjson":   TierSyncWithReview,
		"technical/local_notes.ndjson":    TierDefault,
		"memories/uncategorized.ndjson":   TierDefault,
	}
	for key, want := range cases {
		if got := r.ClassifyTier(key); got != want {
			t.Errorf("ClassifyTier(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestClassifyTierLongestPrefixWins(t *testing.T) {
	r, err := NewRouter(t.TempDir(), config.Tiers{
		SyncWithReview: []string{"a"},
		AlwaysSync:     []string{"a/b"},
		NeverSync:      []string{"a/b/c"},
	}, nil, "")
	if err != nil {
		t.Fatalf("create router: %v", err)
	}

	if got := r.ClassifyTier("a/x.ndjson"); got != TierSyncWithReview {
		t.Errorf("expected review, got %q", got)
	}
	if got := r.ClassifyTier("a/b/x.ndjson"); got != TierAlwaysSync {
		t.Errorf("expected always, got %q", got)
	}
	if got := r.ClassifyTier("a/b/c/x.ndjson"); got != TierNeverSync {
		t.Errorf("expected never, got %q", got)
	}
}

func TestNeverSyncNeverQueued(t *testing.T) {
	r := newTestRouter(t, nil)

	if err := r.QueueForSync("technical/api_keys/prod.ndjson", "create", []byte("secret")); err != nil {
		t.Fatalf("queue: %v", err)
	}
	pending, err := r.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("never_sync key reached the queue: %+v", pending)
	}
}

func TestSyncWithoutBackend(t *testing.T) {
	r := newTestRouter(t, nil)
	r.QueueForSync("experiential/insights/a.ndjson", "create", []byte("x"))

	res, err := r.Sync(context.Background(), func(string) ([]byte, error) { return []byte("x"), nil })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != "disabled" {
		t.Errorf("expected disabled, got %q", res.Status)
	}
	// The queue is untouched.
	pending, _ := r.Pending()
	if len(pending) != 1 {
		t.Fatalf("queue changed without a backend: %+v", pending)
	}
	if s := r.Status(); s.Enabled {
		t.Error("status must report disabled")
	}
}

func TestSyncPushesPending(t *testing.T) {
	backend := newFakeBackend()
	r := newTestRouter(t, backend)

	r.QueueForSync("experiential/insights/a.ndjson", "create", []byte("alpha"))
	r.QueueForSync("experiential/insights/b.ndjson", "create", []byte("beta"))

	content := map[string][]byte{
		"experiential/insights/a.ndjson": []byte("alpha"),
		"experiential/insights/b.ndjson": []byte("beta"),
	}
	res, err := r.Sync(context.Background(), func(key string) ([]byte, error) { return content[key], nil })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != "ok" || res.Synced != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if string(backend.pushed["experiential/insights/a.ndjson"]) != "alpha" {
		t.Error("content not pushed")
	}

	// Synced entries leave the pending set but stay in the audit file.
	pending, _ := r.Pending()
	if len(pending) != 0 {
		t.Fatalf("expected empty pending set, got %+v", pending)
	}
	if s := r.Status(); s.PendingCount != 0 || s.LastSync == "" {
		t.Errorf("state not updated: %+v", s)
	}
}

func TestSyncSkipsMissingLocal(t *testing.T) {
	backend := newFakeBackend()
	r := newTestRouter(t, backend)
	r.QueueForSync("experiential/insights/gone.ndjson", "create", []byte("x"))

	res, err := r.Sync(context.Background(), func(string) ([]byte, error) { return nil, nil })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Skipped != 1 || res.Synced != 0 {
		t.Fatalf("expected skip, got %+v", res)
	}
}

func TestSyncCollectsPerKeyErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["experiential/insights/bad.ndjson"] = true
	r := newTestRouter(t, backend)

	r.QueueForSync("experiential/insights/bad.ndjson", "create", []byte("x"))
	r.QueueForSync("experiential/insights/good.ndjson", "create", []byte("y"))

	res, err := r.Sync(context.Background(), func(key string) ([]byte, error) { return []byte(key), nil })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Synced != 1 || len(res.Errors) != 1 {
		t.Fatalf("expected one success and one error, got %+v", res)
	}
	// The failed entry stays pending for the next attempt.
	pending, _ := r.Pending()
	if len(pending) != 1 || pending[0].Key != "experiential/insights/bad.ndjson" {
		t.Fatalf("expected failed entry pending, got %+v", pending)
	}
}

func TestReviewTierConflict(t *testing.T) {
	backend := newFakeBackend()
	backend.remote["relational/values/core.ndjson"] = []byte("remote version")
	r := newTestRouter(t, backend)

	r.QueueForSync("relational/values/core.ndjson", "update", []byte("local version"))

	res, err := r.Sync(context.Background(), func(string) ([]byte, error) { return []byte("local version"), nil })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Conflicts != 1 || res.Synced != 0 {
		t.Fatalf("expected conflict, got %+v", res)
	}
	if _, pushed := backend.pushed["relational/values/core.ndjson"]; pushed {
		t.Error("conflicting content must not be pushed")
	}

	conflicts, err := r.Conflicts()
	if err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Key != "relational/values/core.ndjson" {
		t.Fatalf("unexpected conflict log: %+v", conflicts)
	}

	if err := r.ResolveConflict("relational/values/core.ndjson", "kept local after review", "local"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conflicts, _ = r.Conflicts()
	if len(conflicts) != 0 {
		t.Fatalf("expected no unresolved conflicts, got %+v", conflicts)
	}
	if s := r.Status(); s.ConflictCount != 0 {
		t.Errorf("conflict count not cleared: %+v", s)
	}
}

func TestReviewTierMatchingRemotePushes(t *testing.T) {
	backend := newFakeBackend()
	backend.remote["relational/values/core.ndjson"] = []byte("same bytes")
	r := newTestRouter(t, backend)

	r.QueueForSync("relational/values/core.ndjson", "update", []byte("same bytes"))

	res, err := r.Sync(context.Background(), func(string) ([]byte, error) { return []byte("same bytes"), nil })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Synced != 1 || res.Conflicts != 0 {
		t.Fatalf("identical remote must not conflict: %+v", res)
	}
}

func TestResolveWithoutConflict(t *testing.T) {
	r := newTestRouter(t, nil)

	if err := r.ResolveConflict("relational/values/core.ndjson", "note", "local"); err == nil {
		t.Error("expected error when nothing to resolve")
	}
}
