package engine

import (
	"encoding/json"
	"fmt"
	"io"
)

// Lifecycle phases of the canonical event record. Front-end-specific hook
// formats are normalized to these by the adapter that invokes `pixelpet hook`.
const (
	PhasePreInvocation   = "pre-invocation"
	PhasePostInvocation  = "post-invocation"
	PhaseTurnStarted     = "turn-started"
	PhaseTurnEnded       = "turn-ended"
	PhaseNotify          = "notify"
	PhaseSubagentStarted = "subagent-started"
	PhaseSubagentStopped = "subagent-stopped"
)

// Event is one canonical hook event. Tool, Input, and Result are only
// present on invocation phases; Message only on notify.
type Event struct {
	SessionID       string         `json:"session_id"`
	Phase           string         `json:"phase"`
	Tool            string         `json:"tool,omitempty"`
	Input           map[string]any `json:"input,omitempty"`
	Result          *EventResult   `json:"result,omitempty"`
	Message         string         `json:"message,omitempty"`
	Cwd             string         `json:"cwd,omitempty"`
	ParentSessionID string         `json:"parent_session_id,omitempty"`
	Ts              int64          `json:"ts,omitempty"`
}

// EventResult carries the raw tool outcome on post-invocation events.
type EventResult struct {
	Text      string `json:"text,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	ErrorFlag bool   `json:"error_flag,omitempty"`
}

// DecodeEvent reads one canonical event from r.
func DecodeEvent(r io.Reader) (Event, error) {
	var ev Event
	dec := json.NewDecoder(r)
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.SessionID == "" {
		return Event{}, fmt.Errorf("event missing session_id")
	}
	if ev.Phase == "" {
		return Event{}, fmt.Errorf("event missing phase")
	}
	return ev, nil
}
