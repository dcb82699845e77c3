// Package governance implements the controller that gates every
// mutation of the memory namespace. The controller is a small state
// machine persisted beside the store; its decision log is append-only
// and permanent, forming a queryable audit trail.
package governance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/agent-chronicle/internal/config"
	"github.com/rcliao/agent-chronicle/internal/model"
	"github.com/rcliao/agent-chronicle/internal/vault"
)

// Controller phases.
const (
	PhaseBootstrapping = "bootstrapping"
	PhaseActive        = "active"
	PhaseInheriting    = "inheriting"
)

// Decisions recorded to the governance log.
const (
	DecisionPause              = "pause"
	DecisionProceed            = "proceed"
	DecisionInherit            = "inherit"
	DecisionAdjustRestraint    = "adjust_restraint"
	DecisionActivateProtocol   = "activate_protocol"
	DecisionDeactivateProtocol = "deactivate_protocol"
)

// State is the persisted controller state. One writer per process;
// instances on different machines reconcile only through Inherit.
type State struct {
	ControllerID      string   `json:"controller_id"`
	Phase             string   `json:"phase"`
	RestraintLevel    float64  `json:"restraint_level"`
	InheritedFrom     string   `json:"inherited_from,omitempty"`
	ProtocolsActive   []string `json:"protocols_active"`
	GovernanceHistory []string `json:"governance_history"`
	CreatedAt         string   `json:"created_at"`
	LastUpdated       string   `json:"last_updated"`
}

// Controller evaluates pause policy and records governance events.
type Controller struct {
	dir    string
	policy config.Governance
	state  *State
}

// NewController loads the persisted state under dir or bootstraps a
// fresh one with the configured defaults.
func NewController(dir string, policy config.Governance) (*Controller, error) {
	c := &Controller{dir: dir, policy: policy}

	var st State
	err := vault.ReadDoc(c.statePath(), &st)
	switch {
	case err == nil:
		c.state = &st
	case os.IsNotExist(err):
		c.state = c.freshState("", PhaseBootstrapping)
		if err := c.save(); err != nil {
			return nil, err
		}
		c.state.Phase = PhaseActive
		if err := c.save(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return c, nil
}

func (c *Controller) statePath() string { return filepath.Join(c.dir, "state.json") }
func (c *Controller) logPath() string   { return filepath.Join(c.dir, "governance"+vault.Ext) }

func (c *Controller) freshState(inheritedFrom, phase string) *State {
	protocols := append([]string{}, c.policy.DefaultProtocols...)
	return &State{
		ControllerID:      "ctrl_" + uuid.NewString()[:8],
		Phase:             phase,
		RestraintLevel:    c.policy.DefaultRestraint,
		InheritedFrom:     inheritedFrom,
		ProtocolsActive:   protocols,
		GovernanceHistory: []string{},
		CreatedAt:         model.Now(),
		LastUpdated:       model.Now(),
	}
}

func (c *Controller) save() error {
	c.state.LastUpdated = model.Now()
	return vault.WriteDoc(c.statePath(), c.state)
}

// ID returns the controller identity.
func (c *Controller) ID() string { return c.state.ControllerID }

// Restraint returns the current restraint level.
func (c *Controller) Restraint() float64 { return c.state.RestraintLevel }

// ShouldPause decides whether an action on a key requires external
// approval before any write happens. Deletes always pause; writes to
// sensitive prefixes always pause; creates pause above the restraint
// threshold.
func (c *Controller) ShouldPause(action, key string) bool {
	if action == "delete" {
		return true
	}
	if action == "create" || action == "update" {
		for _, prefix := range c.policy.SensitivePrefixes {
			if strings.HasPrefix(key, prefix) {
				return true
			}
		}
	}
	if action == "create" && c.state.RestraintLevel > c.policy.CreateThreshold {
		return true
	}
	return false
}

// RecordEvent appends a governance decision to the permanent log and
// returns its ID.
func (c *Controller) RecordEvent(decision, reason, context string, restraintScore float64) (string, error) {
	ev := model.GovernanceEvent{
		EventID:        "gov_" + time.Now().UTC().Format("20060102150405") + "_" + uuid.NewString()[:8],
		Type:           model.TypeGovernance,
		ControllerID:   c.state.ControllerID,
		Decision:       decision,
		Reason:         reason,
		Context:        context,
		RestraintScore: restraintScore,
		Timestamp:      model.Now(),
	}
	if err := vault.AppendLine(c.logPath(), ev); err != nil {
		return "", err
	}
	c.state.GovernanceHistory = append(c.state.GovernanceHistory, ev.EventID)
	if err := c.save(); err != nil {
		return "", err
	}
	return ev.EventID, nil
}

// AdjustRestraint shifts the restraint level, clamped to [0,1], and
// records the adjustment.
func (c *Controller) AdjustRestraint(delta float64, reason string) error {
	old := c.state.RestraintLevel
	next := old + delta
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}
	c.state.RestraintLevel = next

	_, err := c.RecordEvent(
		DecisionAdjustRestraint,
		reason,
		fmt.Sprintf("restraint: %.2f -> %.2f", old, next),
		next,
	)
	return err
}

// ActivateProtocol adds a protocol to the active set.
func (c *Controller) ActivateProtocol(name string) error {
	for _, p := range c.state.ProtocolsActive {
		if p == name {
			return nil
		}
	}
	c.state.ProtocolsActive = append(c.state.ProtocolsActive, name)
	_, err := c.RecordEvent(DecisionActivateProtocol, fmt.Sprintf("protocol %q activated", name), name, c.state.RestraintLevel)
	return err
}

// DeactivateProtocol removes a protocol from the active set.
func (c *Controller) DeactivateProtocol(name string) error {
	kept := c.state.ProtocolsActive[:0]
	found := false
	for _, p := range c.state.ProtocolsActive {
		if p == name {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return nil
	}
	c.state.ProtocolsActive = kept
	_, err := c.RecordEvent(DecisionDeactivateProtocol, fmt.Sprintf("protocol %q deactivated", name), name, c.state.RestraintLevel)
	return err
}

// Inherit hands the controller off to a new identity: restraint and
// protocols carry over, the predecessor is referenced, and an inherit
// event is recorded. This is the only reconciliation path between
// controller instances.
func (c *Controller) Inherit() (*State, error) {
	prev := c.state
	next := c.freshState(prev.ControllerID, PhaseInheriting)
	next.RestraintLevel = prev.RestraintLevel
	next.ProtocolsActive = append([]string{}, prev.ProtocolsActive...)

	c.state = next
	if err := c.save(); err != nil {
		return nil, err
	}
	origin := prev.ControllerID
	if origin == "" {
		origin = "bootstrap"
	}
	if _, err := c.RecordEvent(
		DecisionInherit,
		fmt.Sprintf("new instance inheriting from %s", origin),
		"session_start",
		next.RestraintLevel,
	); err != nil {
		return nil, err
	}
	c.state.Phase = PhaseActive
	if err := c.save(); err != nil {
		return nil, err
	}
	return c.state, nil
}

// StateView is the state plus recent decisions, for status output.
type StateView struct {
	State
	RecentGovernance []model.GovernanceEvent `json:"recent_governance"`
}

// View returns the current state with the newest governance decisions.
func (c *Controller) View(recent int) (*StateView, error) {
	events, err := c.History(recent)
	if err != nil {
		return nil, err
	}
	return &StateView{State: *c.state, RecentGovernance: events}, nil
}

// History returns the newest governance events, oldest first.
func (c *Controller) History(limit int) ([]model.GovernanceEvent, error) {
	lines, err := vault.ReadLines(c.logPath())
	if err != nil {
		return nil, err
	}
	events := []model.GovernanceEvent{}
	for _, ln := range lines {
		var ev model.GovernanceEvent
		if err := json.Unmarshal(ln.Raw, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// HasPauseEvent reports whether eventID names a recorded pause for
// exactly the given key. Confirmation of a delete must present such an
// event; a pause for one key never authorizes another.
func (c *Controller) HasPauseEvent(eventID, key string) (bool, error) {
	events, err := c.History(0)
	if err != nil {
		return false, err
	}
	for _, ev := range events {
		if ev.EventID == eventID && ev.Decision == DecisionPause && ev.Context == key {
			return true, nil
		}
	}
	return false, nil
}
