// Package memory is the governed mutation layer over the generic
// key/value memory namespace. Every mutating call is evaluated by the
// governance controller before it touches disk, and deletion is always
// a two-phase protocol: request, then explicit confirmation.
package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcliao/agent-chronicle/internal/governance"
	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/syncer"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

// PauseMarker prefixes every pause token handed back to callers. Front
// ends surface anything starting with it to a human instead of
// treating it as a result.
const PauseMarker = "GOVERNANCE_PAUSE:"

// WriteResult is the outcome of a governed mutation. Paused is normal
// control flow, not an error: no write happened and Token must be
// surfaced for confirmation.
type WriteResult struct {
	Ref    string `json:"ref,omitempty"`
	Paused bool   `json:"paused"`
	Token  string `json:"token,omitempty"`
}

// Handler routes governed operations to the memories directory.
type Handler struct {
	dir    string
	ctrl   *governance.Controller
	router *syncer.Router
}

// NewHandler wires the mutation layer to its controller and router.
func NewHandler(dir string, ctrl *governance.Controller, router *syncer.Router) *Handler {
	return &Handler{dir: dir, ctrl: ctrl, router: router}
}

// Controller exposes the governance controller for status surfaces.
func (h *Handler) Controller() *governance.Controller { return h.ctrl }

// Router exposes the sync router for status surfaces.
func (h *Handler) Router() *syncer.Router { return h.router }

// validateKey rejects malformed keys before any I/O.
func (h *Handler) validateKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("invalid key: empty")
	}
	if filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid key %q: absolute path", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q: path traversal", key)
	}
	return filepath.Join(h.dir, clean), nil
}

// isPartitionKey reports whether a key holds NDJSON append semantics
// rather than a whole-document overwrite.
func isPartitionKey(key string) bool {
	return strings.HasSuffix(key, vault.Ext)
}

// stamp adds write metadata without clobbering caller fields.
func (h *Handler) stamp(content map[string]any) map[string]any {
	if content == nil {
		content = map[string]any{}
	}
	if _, ok := content["timestamp"]; !ok {
		content["timestamp"] = model.Now()
	}
	if _, ok := content["controller_id"]; !ok {
		content["controller_id"] = h.ctrl.ID()
	}
	return content
}

func (h *Handler) pause(action, key string) (*WriteResult, error) {
	eventID, err := h.ctrl.RecordEvent(
		governance.DecisionPause,
		fmt.Sprintf("%s operation requires review: %s", action, key),
		key,
		h.ctrl.Restraint(),
	)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Paused: true,
		Token:  fmt.Sprintf("%s%s:decision required for %s", PauseMarker, eventID, key),
	}, nil
}

// Create writes a new entry unless governance pauses it first. For
// partition keys the content is appended as one line; any other key is
// written as a whole document. The write is then queued for sync.
func (h *Handler) Create(key string, content map[string]any) (*WriteResult, error) {
	return h.write("create", key, content)
}

// Update has the same gating as Create: append semantics for partition
// keys, whole-document overwrite otherwise.
func (h *Handler) Update(key string, content map[string]any) (*WriteResult, error) {
	return h.write("update", key, content)
}

func (h *Handler) write(action, key string, content map[string]any) (*WriteResult, error) {
	path, err := h.validateKey(key)
	if err != nil {
		return nil, err
	}
	if h.ctrl.ShouldPause(action, key) {
		return h.pause(action, key)
	}

	content = h.stamp(content)
	if isPartitionKey(key) {
		if err := vault.AppendLine(path, content); err != nil {
			return nil, err
		}
	} else {
		if err := vault.WriteDoc(path, content); err != nil {
			return nil, err
		}
	}

	raw, _ := json.Marshal(content)
	if err := h.router.QueueForSync(key, action, raw); err != nil {
		return nil, err
	}
	return &WriteResult{Ref: "memory:" + key}, nil
}

// Read returns the entries of a partition key (one map per line) or
// the single document for any other key. Absence is nil, not an error.
func (h *Handler) Read(key string) (any, error) {
	path, err := h.validateKey(key)
	if err != nil {
		return nil, err
	}
	if isPartitionKey(key) {
		lines, err := vault.ReadLines(path)
		if err != nil {
			return nil, err
		}
		if lines == nil {
			return nil, nil
		}
		entries := make([]map[string]any, 0, len(lines))
		for _, ln := range lines {
			entries = append(entries, ln.Fields)
		}
		return entries, nil
	}

	var doc map[string]any
	if err := vault.ReadDoc(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// ReadRaw returns the raw file bytes for a key, or nil when absent.
// The sync router pushes these bytes verbatim.
func (h *Handler) ReadRaw(key string) ([]byte, error) {
	path, err := h.validateKey(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

// Delete never removes data. It records a pause event at maximum
// restraint and returns the token the caller must bring back to
// ConfirmDelete.
func (h *Handler) Delete(key string) (*WriteResult, error) {
	if _, err := h.validateKey(key); err != nil {
		return nil, err
	}
	eventID, err := h.ctrl.RecordEvent(
		governance.DecisionPause,
		"delete requested, confirmation required",
		key,
		1.0,
	)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Paused: true,
		Token:  fmt.Sprintf("%s%s:DELETE_CONFIRM_REQUIRED:%s", PauseMarker, eventID, key),
	}, nil
}

// ConfirmDelete performs the physical removal. It requires the event
// ID of a prior pause for this key, records a proceed event, and
// reports whether anything was actually removed.
func (h *Handler) ConfirmDelete(key, eventID string) (bool, error) {
	path, err := h.validateKey(key)
	if err != nil {
		return false, err
	}
	ok, err := h.ctrl.HasPauseEvent(eventID, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("no pause event %s recorded for %s", eventID, key)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	// The audit trail must only record deletions that actually happened.
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("remove %s: %w", key, err)
	}
	if _, err := h.ctrl.RecordEvent(
		governance.DecisionProceed,
		"delete confirmed",
		fmt.Sprintf("key=%s, approval=%s", key, eventID),
		0.0,
	); err != nil {
		return false, err
	}
	return true, nil
}

// ListKeys returns every memory key under a prefix, sorted.
func (h *Handler) ListKeys(prefix string) ([]string, error) {
	root := h.dir
	if prefix != "" {
		var err error
		if root, err = h.validateKey(prefix); err != nil {
			return nil, err
		}
	}
	keys := []string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(h.dir, path)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return keys, nil
}

// SearchHit pairs a matching entry with its key.
type SearchHit struct {
	Key   string         `json:"key"`
	Entry map[string]any `json:"entry"`
}

// Search scans partition keys for a case-insensitive substring match
// over the serialized entry. With no tier the experiential and
// relational namespaces are searched.
func (h *Handler) Search(query, tier string) ([]SearchHit, error) {
	prefixes := []string{"experiential", "relational"}
	if tier != "" {
		prefixes = []string{tier}
	}

	needle := []byte(strings.ToLower(query))
	hits := []SearchHit{}
	for _, prefix := range prefixes {
		keys, err := h.ListKeys(prefix)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if !isPartitionKey(key) {
				continue
			}
			lines, err := vault.ReadLines(filepath.Join(h.dir, filepath.FromSlash(key)))
			if err != nil {
				return nil, err
			}
			for _, ln := range lines {
				if bytes.Contains(bytes.ToLower(ln.Raw), needle) {
					hits = append(hits, SearchHit{Key: key, Entry: ln.Fields})
				}
			}
		}
	}
	return hits, nil
}

// Status summarizes the handler, its controller and its router.
func (h *Handler) Status() (map[string]any, error) {
	keys, err := h.ListKeys("")
	if err != nil {
		return nil, err
	}
	view, err := h.ctrl.View(5)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"memories_dir": h.dir,
		"memory_count": len(keys),
		"governance":   view,
		"sync":         h.router.Status(),
	}, nil
}
