// Package display buffers activity-state transitions so the rendered face
// never flickers faster than a human can read it. Each state carries a
// minimum display duration; transitions arriving early are parked as a
// pending state and applied on a later tick, once the current state's
// deadline has passed.
package display

import (
	"time"

	"github.com/avelinecho/pixelpet/internal/activity"
)

// TimelineCap bounds the transition timeline; oldest entries drop first.
const TimelineCap = 64

// defaultMinDisplay applies to states without an explicit entry.
const defaultMinDisplay = 1500 * time.Millisecond

// celebrationMinDisplay applies to every reward state; the user should get
// to see the payoff.
const celebrationMinDisplay = 3 * time.Second

// minDisplay holds the per-state minimum display durations. Failure states
// hold longest, fast transient states turn over quickly, celebration states
// fall back to celebrationMinDisplay.
var minDisplay = map[activity.State]time.Duration{
	activity.StateError:       5 * time.Second,
	activity.StateRateLimited: 5 * time.Second,
	activity.StateReading:     time.Second,
	activity.StateSearching:   time.Second,
	activity.StateIdle:        time.Second,
	activity.StateWaiting:     time.Second,
}

// TimelineEntry records one applied state change.
type TimelineEntry struct {
	State activity.State `json:"state"`
	At    time.Time      `json:"at"`
}

// pending is a buffered transition waiting out the current state's minimum
// display duration.
type pending struct {
	state  activity.State
	detail string
}

// Face is the display state machine for one rendered session slot.
type Face struct {
	current         activity.State
	detail          string
	pendingState    *pending
	minDisplayUntil time.Time
	timeline        []TimelineEntry
	durations       map[activity.State]time.Duration
}

// New creates a face starting in the idle state.
func New(now time.Time) *Face {
	f := &Face{
		current:   activity.StateIdle,
		detail:    "",
		durations: minDisplay,
	}
	f.timeline = append(f.timeline, TimelineEntry{State: f.current, At: now})
	f.minDisplayUntil = now.Add(f.minFor(f.current))
	return f
}

// SetDurations overrides the per-state minimum display durations. States
// missing from the map keep the default.
func (f *Face) SetDurations(d map[activity.State]time.Duration) {
	if len(d) == 0 {
		return
	}
	merged := make(map[activity.State]time.Duration, len(minDisplay)+len(d))
	for k, v := range minDisplay {
		merged[k] = v
	}
	for k, v := range d {
		merged[k] = v
	}
	f.durations = merged
}

// State returns the currently visible state.
func (f *Face) State() activity.State { return f.current }

// Detail returns the currently visible detail text.
func (f *Face) Detail() string { return f.detail }

// Pending returns the buffered next state, or "" when none is pending.
func (f *Face) Pending() activity.State {
	if f.pendingState == nil {
		return ""
	}
	return f.pendingState.state
}

// Timeline returns the applied transitions, oldest first.
func (f *Face) Timeline() []TimelineEntry {
	out := make([]TimelineEntry, len(f.timeline))
	copy(out, f.timeline)
	return out
}

// SetState requests a transition. Transitions are rate-limited, not
// graph-restricted: any state may follow any other, but a new state arriving
// before the current state's minimum display duration elapsed is buffered
// rather than applied. A same-state update refreshes only the detail text
// without restarting the timer or adding a timeline entry.
func (f *Face) SetState(state activity.State, detail string, now time.Time) {
	if state == f.current {
		f.detail = detail
		// The latest request owns the pending slot: a parked older
		// transition is superseded by this update.
		f.pendingState = nil
		return
	}

	if now.Before(f.minDisplayUntil) {
		// Too early: latest request wins the pending slot.
		f.pendingState = &pending{state: state, detail: detail}
		return
	}

	f.apply(state, detail, now)
}

// Tick advances time-dependent behavior: when the minimum-display deadline
// has passed and a transition is pending, the pending state becomes visible
// and the deadline is recomputed from its own minimum duration. Returns true
// when the visible state changed.
func (f *Face) Tick(now time.Time) bool {
	if f.pendingState == nil || now.Before(f.minDisplayUntil) {
		return false
	}
	p := f.pendingState
	f.pendingState = nil
	f.apply(p.state, p.detail, now)
	return true
}

func (f *Face) apply(state activity.State, detail string, now time.Time) {
	// An applied transition supersedes whatever was parked.
	f.pendingState = nil
	f.current = state
	f.detail = detail
	f.minDisplayUntil = now.Add(f.minFor(state))
	f.timeline = append(f.timeline, TimelineEntry{State: state, At: now})
	if len(f.timeline) > TimelineCap {
		f.timeline = f.timeline[len(f.timeline)-TimelineCap:]
	}
}

func (f *Face) minFor(state activity.State) time.Duration {
	if d, ok := f.durations[state]; ok {
		return d
	}
	if state.IsCelebration() {
		return celebrationMinDisplay
	}
	return defaultMinDisplay
}
