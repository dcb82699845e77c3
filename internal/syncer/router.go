// Package syncer classifies governed memory writes into propagation
// tiers and maintains an at-least-once pending queue toward a pluggable
// backend. The local write path never blocks on the network: pushing is
// an explicit, separately invoked operation.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcliao/agent-chronicle/internal/config"
	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

// Tier is a sync-propagation class.
type Tier string

const (
	TierNeverSync      Tier = "never_sync"
	TierAlwaysSync     Tier = "always_sync"
	TierSyncWithReview Tier = "sync_with_review"
	TierDefault        Tier = "default"
)

// Backend is the pluggable remote side of the router. Both calls must
// honor ctx cancellation; a timed-out push leaves the entry pending.
type Backend interface {
	// Push uploads the content for key.
	Push(ctx context.Context, key string, content []byte) error
	// Fetch returns the remote content for key, or nil when the
	// remote has no version.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// PendingEntry is one queued operation.
type PendingEntry struct {
	Key         string `json:"key"`
	Operation   string `json:"operation"`
	Tier        Tier   `json:"tier"`
	QueuedAt    string `json:"queued_at"`
	Status      string `json:"status"`
	ContentHash string `json:"content_hash,omitempty"`
	SyncedAt    string `json:"synced_at,omitempty"`
}

// Conflict is one detected divergence between local and remote.
type Conflict struct {
	Key        string `json:"key"`
	DetectedAt string `json:"detected_at"`
	LocalHash  string `json:"local_hash,omitempty"`
	RemoteHash string `json:"remote_hash,omitempty"`
	Resolved   bool   `json:"resolved"`
	Resolution string `json:"resolution,omitempty"`
	Keep       string `json:"keep,omitempty"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

// routerState is the persisted router summary.
type routerState struct {
	LastSync      string `json:"last_sync,omitempty"`
	PendingCount  int    `json:"pending_count"`
	ConflictCount int    `json:"conflict_count"`
	Backend       string `json:"backend,omitempty"`
}

// Result summarizes one Sync invocation.
type Result struct {
	Status    string   `json:"status"`
	Synced    int      `json:"synced"`
	Conflicts int      `json:"conflicts"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
	Pending   int      `json:"pending_count"`
}

// Status is the router's externally visible state.
type Status struct {
	Enabled       bool   `json:"enabled"`
	Backend       string `json:"backend,omitempty"`
	LastSync      string `json:"last_sync,omitempty"`
	PendingCount  int    `json:"pending_count"`
	ConflictCount int    `json:"conflict_count"`
}

// Router classifies keys and drains the pending queue.
type Router struct {
	dir         string
	tiers       config.Tiers
	backend     Backend
	backendName string
	state       routerState
}

// NewRouter creates a router persisting under dir. A nil backend is
// the legitimate offline-first state: queueing works, pushing reports
// disabled.
func NewRouter(dir string, tiers config.Tiers, backend Backend, backendName string) (*Router, error) {
	r := &Router{dir: dir, tiers: tiers, backend: backend, backendName: backendName}
	if err := vault.ReadDoc(r.statePath(), &r.state); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if backend != nil {
		r.state.Backend = backendName
	}
	return r, nil
}

func (r *Router) pendingPath() string   { return filepath.Join(r.dir, "pending"+vault.Ext) }
func (r *Router) conflictsPath() string { return filepath.Join(r.dir, "conflicts"+vault.Ext) }
func (r *Router) statePath() string     { return filepath.Join(r.dir, "state.json") }

func (r *Router) saveState() error {
	return vault.WriteDoc(r.statePath(), r.state)
}

// ClassifyTier assigns exactly one tier to any key: longest matching
// prefix across the three configured lists wins, unmatched keys are
// the default tier.
func (r *Router) ClassifyTier(key string) Tier {
	best := TierDefault
	bestLen := -1
	check := func(patterns []string, tier Tier) {
		for _, p := range patterns {
			if (strings.HasPrefix(key, p) || key == p) && len(p) > bestLen {
				best = tier
				bestLen = len(p)
			}
		}
	}
	check(r.tiers.NeverSync, TierNeverSync)
	check(r.tiers.AlwaysSync, TierAlwaysSync)
	check(r.tiers.SyncWithReview, TierSyncWithReview)
	return best
}

// QueueForSync records a write for later propagation. Never-sync keys
// are dropped outright and never reach the queue.
func (r *Router) QueueForSync(key, operation string, content []byte) error {
	tier := r.ClassifyTier(key)
	if tier == TierNeverSync {
		return nil
	}
	entry := PendingEntry{
		Key:         key,
		Operation:   operation,
		Tier:        tier,
		QueuedAt:    model.Now(),
		Status:      "pending",
		ContentHash: hashContent(content),
	}
	if err := vault.AppendLine(r.pendingPath(), entry); err != nil {
		return err
	}
	r.state.PendingCount++
	return r.saveState()
}

// Pending returns the queue entries still awaiting propagation.
func (r *Router) Pending() ([]PendingEntry, error) {
	lines, err := vault.ReadLines(r.pendingPath())
	if err != nil {
		return nil, err
	}
	pending := []PendingEntry{}
	for _, ln := range lines {
		var e PendingEntry
		if err := json.Unmarshal(ln.Raw, &e); err != nil {
			continue
		}
		if e.Status == "pending" {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Sync drains the pending queue against the backend. With no backend
// configured it reports disabled and leaves the queue untouched.
// Per-key failures are collected and do not abort the remaining
// entries; synced entries are marked in place so the queue file stays
// an audit trail.
func (r *Router) Sync(ctx context.Context, localContent func(key string) ([]byte, error)) (*Result, error) {
	if r.backend == nil {
		return &Result{
			Status:  "disabled",
			Errors:  []string{},
			Pending: r.state.PendingCount,
		}, nil
	}

	pending, err := r.Pending()
	if err != nil {
		return nil, err
	}
	res := &Result{Status: "ok", Errors: []string{}}

	for _, item := range pending {
		content, err := localContent(item.Key)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", item.Key, err))
			continue
		}
		if content == nil {
			// Local copy is gone; nothing to push.
			res.Skipped++
			continue
		}

		if item.Tier == TierSyncWithReview {
			remote, err := r.backend.Fetch(ctx, item.Key)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: fetch: %v", item.Key, err))
				continue
			}
			if remote != nil && hashContent(remote) != hashContent(content) {
				if err := r.recordConflict(item.Key, hashContent(content), hashContent(remote)); err != nil {
					return res, err
				}
				res.Conflicts++
				continue
			}
		}

		if err := r.backend.Push(ctx, item.Key, content); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: push: %v", item.Key, err))
			continue
		}
		if err := r.markSynced(item); err != nil {
			return res, err
		}
		res.Synced++
	}

	r.state.LastSync = model.Now()
	r.state.PendingCount -= res.Synced
	if r.state.PendingCount < 0 {
		r.state.PendingCount = 0
	}
	r.state.ConflictCount += res.Conflicts
	if err := r.saveState(); err != nil {
		return res, err
	}
	res.Pending = r.state.PendingCount
	return res, nil
}

// Conflicts returns the unresolved conflicts.
func (r *Router) Conflicts() ([]Conflict, error) {
	lines, err := vault.ReadLines(r.conflictsPath())
	if err != nil {
		return nil, err
	}
	conflicts := []Conflict{}
	for _, ln := range lines {
		var c Conflict
		if err := json.Unmarshal(ln.Raw, &c); err != nil {
			continue
		}
		if !c.Resolved {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts, nil
}

// ResolveConflict marks every recorded conflict for key as resolved,
// rewriting the conflict log with the chosen resolution.
func (r *Router) ResolveConflict(key, resolution, keep string) error {
	lines, err := vault.ReadLines(r.conflictsPath())
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("no conflicts recorded for %s", key)
	}

	resolved := 0
	records := make([]any, 0, len(lines))
	for _, ln := range lines {
		var c Conflict
		if err := json.Unmarshal(ln.Raw, &c); err != nil {
			continue
		}
		if c.Key == key && !c.Resolved {
			c.Resolved = true
			c.Resolution = resolution
			c.Keep = keep
			c.ResolvedAt = model.Now()
			resolved++
		}
		records = append(records, c)
	}
	if resolved == 0 {
		return fmt.Errorf("no unresolved conflict for %s", key)
	}
	if err := vault.RewriteLines(r.conflictsPath(), records); err != nil {
		return err
	}
	r.state.ConflictCount -= resolved
	if r.state.ConflictCount < 0 {
		r.state.ConflictCount = 0
	}
	return r.saveState()
}

// Status reports the router's current view.
func (r *Router) Status() Status {
	return Status{
		Enabled:       r.backend != nil,
		Backend:       r.state.Backend,
		LastSync:      r.state.LastSync,
		PendingCount:  r.state.PendingCount,
		ConflictCount: r.state.ConflictCount,
	}
}

func (r *Router) recordConflict(key, localHash, remoteHash string) error {
	return vault.AppendLine(r.conflictsPath(), Conflict{
		Key:        key,
		DetectedAt: model.Now(),
		LocalHash:  localHash,
		RemoteHash: remoteHash,
	})
}

// markSynced flips one pending entry's status in place. The file is
// rewritten rather than truncated so the history of every queued
// operation survives.
func (r *Router) markSynced(item PendingEntry) error {
	lines, err := vault.ReadLines(r.pendingPath())
	if err != nil {
		return err
	}
	records := make([]any, 0, len(lines))
	for _, ln := range lines {
		var e PendingEntry
		if err := json.Unmarshal(ln.Raw, &e); err != nil {
			continue
		}
		if e.Key == item.Key && e.QueuedAt == item.QueuedAt && e.Status == "pending" {
			e.Status = "synced"
			e.SyncedAt = model.Now()
		}
		records = append(records, e)
	}
	return vault.RewriteLines(r.pendingPath(), records)
}

// hashContent is the short content fingerprint stored with each queue
// entry for later conflict comparison.
func hashContent(content []byte) string {
	if content == nil {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}
