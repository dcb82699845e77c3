// Package query answers read requests directly against the chronicle
// tree. It is stateless: every answer is reconstructed from directory
// structure and file contents, so it stays correct when the secondary
// index is stale or missing.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

// Engine resolves filtered lookups over a chronicle root.
type Engine struct {
	layout *vault.Layout
}

// NewEngine creates a query engine over the given layout.
func NewEngine(layout *vault.Layout) *Engine {
	return &Engine{layout: layout}
}

// RecallInsights returns insights with intensity at or above the
// threshold, optionally restricted to one domain. Result order is
// filesystem enumeration order.
func (e *Engine) RecallInsights(domain string, minIntensity float64) ([]model.Insight, error) {
	if domain == "" {
		domain = "*"
	}
	pattern := filepath.Join(e.layout.InsightsDir(), domain, "*"+vault.Ext)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob insights: %w", err)
	}

	results := []model.Insight{}
	for _, file := range files {
		lines, err := vault.ReadLines(file)
		if err != nil {
			return nil, err
		}
		for _, ln := range lines {
			if ln.Fields["type"] != model.TypeInsight {
				continue
			}
			var in model.Insight
			if err := json.Unmarshal(ln.Raw, &in); err != nil {
				continue
			}
			if in.Intensity >= minIntensity {
				results = append(results, in)
			}
		}
	}
	return results, nil
}

// CheckMistakes returns learnings whose what_failed contains action
// (case-insensitive). An empty action matches every learning. When
// context is given it must appear anywhere in the serialized record.
func (e *Engine) CheckMistakes(action, context string) ([]model.Learning, error) {
	files, err := filepath.Glob(filepath.Join(e.layout.MistakesDir(), "*"+vault.Ext))
	if err != nil {
		return nil, fmt.Errorf("glob mistakes: %w", err)
	}

	action = strings.ToLower(action)
	context = strings.ToLower(context)

	results := []model.Learning{}
	for _, file := range files {
		lines, err := vault.ReadLines(file)
		if err != nil {
			return nil, err
		}
		for _, ln := range lines {
			if ln.Fields["type"] != model.TypeLearning {
				continue
			}
			var l model.Learning
			if err := json.Unmarshal(ln.Raw, &l); err != nil {
				continue
			}
			if !strings.Contains(strings.ToLower(l.WhatFailed), action) {
				continue
			}
			if context != "" && !bytes.Contains(bytes.ToLower(ln.Raw), []byte(context)) {
				continue
			}
			results = append(results, l)
		}
	}
	return results, nil
}

// Values returns every observed principle in the chronicle.
func (e *Engine) Values() ([]model.ValueObserved, error) {
	files, err := filepath.Glob(filepath.Join(e.layout.ValuesDir(), "*"+vault.Ext))
	if err != nil {
		return nil, fmt.Errorf("glob values: %w", err)
	}

	results := []model.ValueObserved{}
	for _, file := range files {
		lines, err := vault.ReadLines(file)
		if err != nil {
			return nil, err
		}
		for _, ln := range lines {
			if ln.Fields["type"] != model.TypeValueObserved {
				continue
			}
			var v model.ValueObserved
			if err := json.Unmarshal(ln.Raw, &v); err != nil {
				continue
			}
			results = append(results, v)
		}
	}
	return results, nil
}

// SpiralContext describes what a session builds on.
type SpiralContext struct {
	SessionID       string   `json:"session_id"`
	BuildsOn        []string `json:"builds_on"`
	LineageChain    []string `json:"lineage_chain"`
	RelatedSessions []string `json:"related_sessions"`
}

// SpiralContext unions builds_on and lineage_chain fields across the
// session's lineage partitions. Traversal is single-hop: builds_on
// references are returned, not resolved, and callers needing transitive
// closure re-invoke per related session.
func (e *Engine) SpiralContext(sessionID string) (*SpiralContext, error) {
	files, err := filepath.Glob(filepath.Join(e.layout.LineageDir(), "*"+sessionID+"*"+vault.Ext))
	if err != nil {
		return nil, fmt.Errorf("glob lineage: %w", err)
	}

	ctx := &SpiralContext{
		SessionID:       sessionID,
		BuildsOn:        []string{},
		LineageChain:    []string{},
		RelatedSessions: []string{},
	}
	for _, file := range files {
		lines, err := vault.ReadLines(file)
		if err != nil {
			return nil, err
		}
		for _, ln := range lines {
			t := ln.Fields["type"]
			if t != model.TypeLineage && t != model.TypeTransformation {
				continue
			}
			if sid, _ := ln.Fields["session_id"].(string); sid != sessionID {
				continue
			}
			ctx.BuildsOn = append(ctx.BuildsOn, stringSlice(ln.Fields["builds_on"])...)
			if chain := stringSlice(ln.Fields["lineage_chain"]); len(chain) > 0 {
				ctx.LineageChain = chain
			}
		}
	}

	seen := map[string]bool{}
	for _, item := range ctx.LineageChain {
		if !seen[item] {
			seen[item] = true
			ctx.RelatedSessions = append(ctx.RelatedSessions, item)
		}
	}
	return ctx, nil
}

// SearchParams holds filters for a global search. All filters are
// conjunctive; the time range is inclusive at both ends.
type SearchParams struct {
	Query string
	Types []string
	Since time.Time
	Until time.Time
}

// Search scans every chronicle partition for records containing the
// query as a case-insensitive substring of the serialized line.
func (e *Engine) Search(p SearchParams) ([]map[string]any, error) {
	var files []string
	err := walkPartitions(e.layout, func(path string) error {
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	needle := []byte(strings.ToLower(p.Query))
	typeSet := map[string]bool{}
	for _, t := range p.Types {
		if t = strings.TrimSpace(t); t != "" {
			typeSet[t] = true
		}
	}

	results := []map[string]any{}
	for _, file := range files {
		lines, err := vault.ReadLines(file)
		if err != nil {
			return nil, err
		}
		for _, ln := range lines {
			if !bytes.Contains(bytes.ToLower(ln.Raw), needle) {
				continue
			}
			if len(typeSet) > 0 {
				t, _ := ln.Fields["type"].(string)
				if !typeSet[t] {
					continue
				}
			}
			if !p.Since.IsZero() || !p.Until.IsZero() {
				ts := recordTime(ln.Fields)
				if ts.IsZero() {
					continue
				}
				if !p.Since.IsZero() && ts.Before(p.Since) {
					continue
				}
				if !p.Until.IsZero() && ts.After(p.Until) {
					continue
				}
			}
			results = append(results, ln.Fields)
		}
	}
	return results, nil
}

// Recent returns the newest chronicle entries across insights, values
// and learnings, sorted by timestamp descending. Events and governance
// records are bookkeeping, not digest material.
func (e *Engine) Recent(limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := e.Search(SearchParams{
		Types: []string{model.TypeInsight, model.TypeValueObserved, model.TypeLearning},
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		ti, _ := all[i]["timestamp"].(string)
		tj, _ := all[j]["timestamp"].(string)
		return ti > tj
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// walkPartitions visits every indexable chronicle partition in
// filesystem enumeration order. An absent root is empty, not an error.
func walkPartitions(layout *vault.Layout, fn func(path string) error) error {
	err := filepath.WalkDir(layout.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are absence, not failure
		}
		if d.IsDir() || !layout.IsPartition(path) {
			return nil
		}
		return fn(path)
	})
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func recordTime(fields map[string]any) time.Time {
	for _, key := range []string{"timestamp", "ts"} {
		if s, ok := fields[key].(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
