// Package index maintains the reconstructible inverted index over the
// chronicle. The index is pure derived state: deleting its files and
// rebuilding reproduces identical statistics from the same partitions,
// and nothing ever consults it to decide whether a write succeeded.
package index

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

const minKeywordLen = 4

// TermEntry is one posting of the inverted index.
type TermEntry struct {
	Files     []string `json:"files"`
	Frequency int      `json:"frequency"`
}

// Stats summarizes a rebuild or the persisted cache.
type Stats struct {
	Status          string `json:"status"`
	FilesScanned    int    `json:"files_scanned,omitempty"`
	TotalEntries    int    `json:"total_entries,omitempty"`
	UniqueKeywords  int    `json:"unique_keywords"`
	SessionsIndexed int    `json:"sessions_indexed"`
	DomainsIndexed  int    `json:"domains_indexed"`
	LinesSkipped    int    `json:"lines_skipped,omitempty"`
}

// Builder scans the chronicle and persists three JSON maps:
// term -> posting, session -> files, domain -> insight files.
type Builder struct {
	layout *vault.Layout

	mu sync.Mutex // rebuild is not reentrant
}

// NewBuilder creates a builder over the layout.
func NewBuilder(layout *vault.Layout) *Builder {
	return &Builder{layout: layout}
}

func (b *Builder) invertedPath() string { return filepath.Join(b.layout.CacheDir(), "inverted_index.json") }
func (b *Builder) sessionPath() string  { return filepath.Join(b.layout.CacheDir(), "session_map.json") }
func (b *Builder) domainPath() string   { return filepath.Join(b.layout.CacheDir(), "domain_map.json") }

// Rebuild performs a full scan of every partition and atomically
// replaces the three index documents. Individual malformed lines are
// skipped and counted; they never abort the rebuild. Concurrent
// appenders may add lines mid-scan; that staleness heals on the next
// rebuild.
func (b *Builder) Rebuild() (*Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inverted := map[string]*TermEntry{}
	invertedFiles := map[string]map[string]bool{}
	sessions := map[string]map[string]bool{}
	domains := map[string]map[string]bool{}

	stats := &Stats{Status: "cached"}

	var files []string
	err := filepath.WalkDir(b.layout.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && b.layout.IsPartition(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(files)
	stats.FilesScanned = len(files)

	for _, file := range files {
		rel, err := filepath.Rel(b.layout.Root, file)
		if err != nil {
			rel = file
		}
		rel = filepath.ToSlash(rel)

		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		for _, lineText := range strings.Split(string(raw), "\n") {
			if strings.TrimSpace(lineText) == "" {
				continue
			}
			fields, ok := decodeLine(lineText)
			if !ok {
				stats.LinesSkipped++
				continue
			}
			stats.TotalEntries++

			if sid, _ := fields["session_id"].(string); sid != "" {
				addFile(sessions, sid, rel)
			}
			if fields["type"] == model.TypeInsight {
				if dom, _ := fields["domain"].(string); dom != "" {
					addFile(domains, dom, rel)
				}
			}
			content, _ := fields["content"].(string)
			for kw := range extractKeywords(content) {
				entry := inverted[kw]
				if entry == nil {
					entry = &TermEntry{}
					inverted[kw] = entry
					invertedFiles[kw] = map[string]bool{}
				}
				invertedFiles[kw][rel] = true
				entry.Frequency++
			}
		}
	}

	for kw, entry := range inverted {
		entry.Files = sortedKeys(invertedFiles[kw])
	}

	if err := vault.WriteDoc(b.invertedPath(), inverted); err != nil {
		return nil, err
	}
	if err := vault.WriteDoc(b.sessionPath(), toSortedMap(sessions)); err != nil {
		return nil, err
	}
	if err := vault.WriteDoc(b.domainPath(), toSortedMap(domains)); err != nil {
		return nil, err
	}

	stats.UniqueKeywords = len(inverted)
	stats.SessionsIndexed = len(sessions)
	stats.DomainsIndexed = len(domains)
	return stats, nil
}

// Search resolves a keyword against the persisted term map. A missing
// cache yields an empty list, never an error; callers distinguish
// "no match" from "rebuild needed" via Stats.
func (b *Builder) Search(keyword string) ([]string, error) {
	var inverted map[string]TermEntry
	if err := vault.ReadDoc(b.invertedPath(), &inverted); err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	entry, ok := inverted[strings.ToLower(keyword)]
	if !ok {
		return []string{}, nil
	}
	return entry.Files, nil
}

// Stats reports whether a cache exists and its summary counts.
func (b *Builder) Stats() (*Stats, error) {
	var inverted map[string]TermEntry
	if err := vault.ReadDoc(b.invertedPath(), &inverted); err != nil {
		if os.IsNotExist(err) {
			return &Stats{Status: "no_cache"}, nil
		}
		return nil, err
	}
	var sessions, domains map[string][]string
	if err := vault.ReadDoc(b.sessionPath(), &sessions); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := vault.ReadDoc(b.domainPath(), &domains); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &Stats{
		Status:          "cached",
		UniqueKeywords:  len(inverted),
		SessionsIndexed: len(sessions),
		DomainsIndexed:  len(domains),
	}, nil
}

func decodeLine(s string) (map[string]any, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// extractKeywords returns the lower-cased alphabetic tokens of length
// >= 4, deduplicated per record.
func extractKeywords(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) < minKeywordLen || !isAlpha(w) {
			continue
		}
		out[w] = true
	}
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func addFile(m map[string]map[string]bool, key, file string) {
	if m[key] == nil {
		m[key] = map[string]bool{}
	}
	m[key][file] = true
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSortedMap(m map[string]map[string]bool) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		out[k] = sortedKeys(set)
	}
	return out
}
