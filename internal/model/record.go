// Package model defines the chronicle record kinds.
package model

import (
	"fmt"
	"time"
)

// Record type tags as written to the "type" field of every NDJSON line.
const (
	TypeInsight        = "insight"
	TypeLearning       = "learning"
	TypeTransformation = "transformation"
	TypeValueObserved  = "value_observed"
	TypeLineage        = "lineage"
	TypeGovernance     = "governance_decision"
)

// Insight is a domain-organized discovery. Immutable once appended.
type Insight struct {
	Type      string   `json:"type"`
	InsightID string   `json:"insight_id"`
	SessionID string   `json:"session_id"`
	Domain    string   `json:"domain"`
	Content   string   `json:"content"`
	Context   string   `json:"context,omitempty"`
	Intensity float64  `json:"intensity"`
	BuildsOn  []string `json:"builds_on"`
	Timestamp string   `json:"timestamp"`
}

// Learning documents a mistake so later sessions can avoid it.
type Learning struct {
	Type       string   `json:"type"`
	LearningID string   `json:"learning_id"`
	SessionID  string   `json:"session_id"`
	Category   string   `json:"category"`
	WhatFailed string   `json:"what_failed"`
	Why        string   `json:"why"`
	Correction string   `json:"correction"`
	Prevents   []string `json:"prevents"`
	Timestamp  string   `json:"timestamp"`
}

// Transformation captures a shift in understanding within a session.
type Transformation struct {
	Type             string  `json:"type"`
	TransformationID string  `json:"transformation_id"`
	SessionID        string  `json:"session_id"`
	WhatChanged      string  `json:"what_changed"`
	Why              string  `json:"why"`
	Intensity        float64 `json:"intensity"`
	Timestamp        string  `json:"timestamp"`
}

// ValueObserved records an observed principle with supporting evidence.
type ValueObserved struct {
	Type      string `json:"type"`
	Principle string `json:"principle"`
	Evidence  string `json:"evidence"`
	Weight    string `json:"weight"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// Event is a raw technical event in a session's dated stream.
// Payload fields are flattened alongside the envelope on serialization.
type Event struct {
	EventID   string         `json:"event_id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"-"`
}

// Snapshot is a point-in-time state blob for fast session resume.
type Snapshot struct {
	SnapshotID string         `json:"snapshot_id"`
	SessionID  string         `json:"session_id"`
	Timestamp  string         `json:"timestamp"`
	State      map[string]any `json:"state"`
}

// GovernanceEvent is one entry of the permanent governance audit trail.
type GovernanceEvent struct {
	EventID        string  `json:"event_id"`
	Type           string  `json:"type"`
	ControllerID   string  `json:"controller_id"`
	Decision       string  `json:"decision"`
	Reason         string  `json:"reason"`
	Context        string  `json:"context"`
	RestraintScore float64 `json:"restraint_score"`
	Timestamp      string  `json:"timestamp"`
}

// ValidWeights are the allowed value weights.
var ValidWeights = map[string]bool{
	"foundational": true,
	"important":    true,
	"situational":  true,
}

// Now returns the canonical record timestamp (RFC3339, UTC).
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewInsight validates and builds an Insight without ID or timestamp;
// the store stamps those on append.
func NewInsight(content, domain, sessionID string, intensity float64, context string, buildsOn []string) (*Insight, error) {
	if content == "" {
		return nil, fmt.Errorf("insight: content is required")
	}
	if domain == "" {
		return nil, fmt.Errorf("insight: domain is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("insight: session_id is required")
	}
	if intensity < 0 || intensity > 1 {
		return nil, fmt.Errorf("insight: intensity %v out of range [0,1]", intensity)
	}
	if buildsOn == nil {
		buildsOn = []string{}
	}
	return &Insight{
		Type:      TypeInsight,
		SessionID: sessionID,
		Domain:    domain,
		Content:   content,
		Context:   context,
		Intensity: intensity,
		BuildsOn:  buildsOn,
	}, nil
}

// NewLearning validates and builds a Learning.
func NewLearning(whatFailed, why, correction, sessionID string, prevents []string) (*Learning, error) {
	if whatFailed == "" {
		return nil, fmt.Errorf("learning: what_failed is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("learning: session_id is required")
	}
	if prevents == nil {
		prevents = []string{}
	}
	return &Learning{
		Type:       TypeLearning,
		SessionID:  sessionID,
		Category:   "mistake",
		WhatFailed: whatFailed,
		Why:        why,
		Correction: correction,
		Prevents:   prevents,
	}, nil
}

// NewTransformation validates and builds a Transformation.
func NewTransformation(whatChanged, why, sessionID string, intensity float64) (*Transformation, error) {
	if whatChanged == "" {
		return nil, fmt.Errorf("transformation: what_changed is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("transformation: session_id is required")
	}
	if intensity < 0 || intensity > 1 {
		return nil, fmt.Errorf("transformation: intensity %v out of range [0,1]", intensity)
	}
	return &Transformation{
		Type:        TypeTransformation,
		SessionID:   sessionID,
		WhatChanged: whatChanged,
		Why:         why,
		Intensity:   intensity,
	}, nil
}

// NewValueObserved validates and builds a ValueObserved.
func NewValueObserved(principle, evidence, weight, sessionID string) (*ValueObserved, error) {
	if principle == "" {
		return nil, fmt.Errorf("value: principle is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("value: session_id is required")
	}
	if weight == "" {
		weight = "situational"
	}
	if !ValidWeights[weight] {
		return nil, fmt.Errorf("value: invalid weight %q", weight)
	}
	return &ValueObserved{
		Type:      TypeValueObserved,
		Principle: principle,
		Evidence:  evidence,
		Weight:    weight,
		SessionID: sessionID,
	}, nil
}
