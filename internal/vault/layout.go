// Package vault defines the on-disk layout of a chronicle root and the
// low-level NDJSON primitives shared by every component. The directory
// structure is the query interface; nothing here interprets record
// contents beyond line framing.
package vault

import (
	"path/filepath"

	"github.com/gobwas/glob"
)

// Ext is the extension of every multi-entry partition file.
const Ext = ".ndjson"

// Layout resolves the well-known directories under a chronicle root.
type Layout struct {
	Root string

	partitions glob.Glob
}

// NewLayout builds a Layout for root. The partition matcher selects
// every NDJSON file under the root except derived or router state
// (cache/ and sync/ are not source partitions).
func NewLayout(root string) *Layout {
	return &Layout{
		Root:       root,
		partitions: glob.MustCompile("**"+Ext, '/'),
	}
}

func (l *Layout) InsightsDir() string  { return filepath.Join(l.Root, "insights") }
func (l *Layout) MistakesDir() string  { return filepath.Join(l.Root, "learnings", "mistakes") }
func (l *Layout) ValuesDir() string    { return filepath.Join(l.Root, "values", "principles") }
func (l *Layout) LineageDir() string   { return filepath.Join(l.Root, "lineage") }
func (l *Layout) EventsDir() string    { return filepath.Join(l.Root, "events") }
func (l *Layout) SnapshotsDir() string { return filepath.Join(l.Root, "snapshots") }
func (l *Layout) CacheDir() string     { return filepath.Join(l.Root, "cache") }
func (l *Layout) MemoriesDir() string  { return filepath.Join(l.Root, "memories") }
func (l *Layout) SpiralDir() string    { return filepath.Join(l.Root, "memories", "spiral") }
func (l *Layout) SyncDir() string      { return filepath.Join(l.Root, "sync") }

// IsPartition reports whether path (relative to root or absolute)
// is an indexable source partition.
func (l *Layout) IsPartition(path string) bool {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	if !l.partitions.Match(rel) {
		return false
	}
	// Derived and router-internal files are never source partitions.
	for _, prefix := range []string{"cache/", "sync/"} {
		if len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			return false
		}
	}
	return true
}
