// Package chronicle implements the append-only partitioned record
// store. Every record is one NDJSON line; partitions are created lazily
// on first write and never rewritten. Permanence is the point: typed
// chronicle records have no delete path.
package chronicle

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

// Store appends typed records into a chronicle root.
type Store struct {
	layout  *vault.Layout
	entropy *rand.Rand
}

// NewStore creates a store rooted at the given layout. No directories
// are created up front; partitions appear on first write.
func NewStore(layout *vault.Layout) *Store {
	return &Store{
		layout:  layout,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Store) newID(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	return prefix + "_" + strings.ToLower(id)
}

// Append adds a technical event to the session's dated partition and
// returns the generated event ID.
func (s *Store) Append(eventType string, payload map[string]any, sessionID string) (string, error) {
	if eventType == "" {
		return "", fmt.Errorf("event: type is required")
	}
	if sessionID == "" {
		return "", fmt.Errorf("event: session_id is required")
	}
	ev := model.Event{
		EventID:   s.newID("evt"),
		TS:        model.Now(),
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
	}
	path := s.layout.EventsDir() + "/" + sessionID + "/" + time.Now().UTC().Format("20060102") + vault.Ext
	if err := vault.AppendLine(path, ev); err != nil {
		return "", err
	}
	return ev.EventID, nil
}

// RecordInsight appends an insight to its domain partition.
func (s *Store) RecordInsight(content, domain, sessionID string, intensity float64, context string, buildsOn []string) (string, error) {
	in, err := model.NewInsight(content, domain, sessionID, intensity, context, buildsOn)
	if err != nil {
		return "", err
	}
	in.InsightID = s.newID("ins")
	in.Timestamp = model.Now()

	path := s.layout.InsightsDir() + "/" + domain + "/" + sessionID + vault.Ext
	if err := vault.AppendLine(path, in); err != nil {
		return "", err
	}
	return in.InsightID, nil
}

// RecordLearning appends a mistake record. The partition name carries a
// slug of what failed so the directory itself reads as an error index.
func (s *Store) RecordLearning(whatFailed, why, correction, sessionID string, prevents []string) (string, error) {
	l, err := model.NewLearning(whatFailed, why, correction, sessionID, prevents)
	if err != nil {
		return "", err
	}
	l.LearningID = s.newID("learn")
	l.Timestamp = model.Now()

	path := s.layout.MistakesDir() + "/" + sessionID + "_" + slugify(whatFailed) + vault.Ext
	if err := vault.AppendLine(path, l); err != nil {
		return "", err
	}
	return l.LearningID, nil
}

// RecordTransformation appends a transformation to the session's
// lineage partition.
func (s *Store) RecordTransformation(whatChanged, why, sessionID string, intensity float64) (string, error) {
	tr, err := model.NewTransformation(whatChanged, why, sessionID, intensity)
	if err != nil {
		return "", err
	}
	tr.TransformationID = s.newID("trans")
	tr.Timestamp = model.Now()

	path := s.layout.LineageDir() + "/" + sessionID + "_transformation" + vault.Ext
	if err := vault.AppendLine(path, tr); err != nil {
		return "", err
	}
	return tr.TransformationID, nil
}

// RecordValue appends an observed principle to the session's values
// partition.
func (s *Store) RecordValue(principle, evidence, weight, sessionID string) error {
	v, err := model.NewValueObserved(principle, evidence, weight, sessionID)
	if err != nil {
		return err
	}
	v.Timestamp = model.Now()

	path := s.layout.ValuesDir() + "/" + sessionID + vault.Ext
	return vault.AppendLine(path, v)
}

// slugify turns free text into a short partition-name fragment.
func slugify(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 30 {
		out = out[:30]
	}
	return out
}
