package chronicle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

// latestPointer is a small file naming the most recent snapshot path,
// written via temp+rename. A pointer file replaces the usual symlink so
// repointing stays atomic on platforms without symlink replacement.
const latestPointer = "LATEST"

// CreateSnapshot writes a full state blob for the session and repoints
// the global latest marker at it.
func (s *Store) CreateSnapshot(sessionID string, state map[string]any) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("snapshot: session_id is required")
	}
	snap := model.Snapshot{
		SnapshotID: "snap_" + time.Now().UTC().Format("20060102_150405") + "_" + s.newID("s")[2:8],
		SessionID:  sessionID,
		Timestamp:  model.Now(),
		State:      state,
	}
	path := filepath.Join(s.layout.SnapshotsDir(), sessionID, snap.SnapshotID+".json")
	if err := vault.WriteDoc(path, snap); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(s.layout.SnapshotsDir(), path)
	if err != nil {
		rel = path
	}
	pointer := filepath.Join(s.layout.SnapshotsDir(), latestPointer)
	tmp := pointer + ".tmp"
	if err := os.WriteFile(tmp, []byte(rel+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write latest pointer: %w", err)
	}
	if err := os.Rename(tmp, pointer); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("repoint latest: %w", err)
	}
	return snap.SnapshotID, nil
}

// GetLatestSnapshot resolves the newest snapshot for a session, or the
// globally latest one via the pointer file when sessionID is empty.
// Absence is nil, not an error.
func (s *Store) GetLatestSnapshot(sessionID string) (*model.Snapshot, error) {
	if sessionID != "" {
		dir := filepath.Join(s.layout.SnapshotsDir(), sessionID)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasPrefix(e.Name(), "snap_") && strings.HasSuffix(e.Name(), ".json") {
				names = append(names, e.Name())
			}
		}
		if len(names) == 0 {
			return nil, nil
		}
		// Snapshot IDs embed a sortable timestamp.
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
		return s.loadSnapshot(filepath.Join(dir, names[0]))
	}

	b, err := os.ReadFile(filepath.Join(s.layout.SnapshotsDir(), latestPointer))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest pointer: %w", err)
	}
	target := strings.TrimSpace(string(b))
	if target == "" {
		return nil, nil
	}
	return s.loadSnapshot(filepath.Join(s.layout.SnapshotsDir(), target))
}

func (s *Store) loadSnapshot(path string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := vault.ReadDoc(path, &snap); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}
