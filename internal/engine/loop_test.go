package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelinecho/pixelpet/internal/activity"
)

type fakeHub struct {
	outputs []Output
}

func (h *fakeHub) Broadcast(out Output) {
	h.outputs = append(h.outputs, out)
}

func TestLoopRefresh_BuffersRapidTransition(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	hub := &fakeHub{}
	loop := NewLoop(e, hub, now)

	e.HandleEvent(Event{
		SessionID: "s1",
		Phase:     PhasePreInvocation,
		Tool:      "Edit",
		Input:     map[string]any{"file_path": "/p/main.go"},
	}, now)

	// The face starts idle; a transition inside idle's minimum display
	// window is buffered, not shown.
	out := loop.Refresh(now)
	assert.Equal(t, string(activity.StateIdle), out.State)
	assert.Equal(t, activity.StateCoding, loop.Face().Pending())

	// After the window, the buffered state becomes visible.
	out = loop.Refresh(now.Add(2 * time.Second))
	assert.Equal(t, string(activity.StateCoding), out.State)
	assert.Contains(t, out.Detail, "main.go")
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, 1, out.Sessions)
}

func TestLoopRefresh_PublishesOnlyChanges(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	hub := &fakeHub{}
	loop := NewLoop(e, hub, now)

	loop.Refresh(now.Add(2 * time.Second))
	loop.Refresh(now.Add(3 * time.Second))
	loop.Refresh(now.Add(4 * time.Second))

	// Identical idle outputs collapse to a single broadcast.
	require.Len(t, hub.outputs, 1)
	assert.Equal(t, string(activity.StateIdle), hub.outputs[0].State)
}

func TestLoopRefresh_SleepingAfterLongWait(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	loop := NewLoop(e, nil, now)

	e.HandleEvent(Event{SessionID: "s1", Phase: PhaseTurnEnded}, now)

	// Six minutes later the waiting session reads as sleeping.
	later := now.Add(6 * time.Minute)
	loop.Refresh(later)
	out := loop.Refresh(later.Add(2 * time.Second))
	assert.Equal(t, string(activity.StateSleeping), out.State)
	assert.Equal(t, "zzz", out.Detail)
}

func TestLoopRefresh_EvictsStoppedAfterLinger(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	loop := NewLoop(e, nil, now)

	e.HandleEvent(Event{SessionID: "child", Phase: PhaseSubagentStarted, ParentSessionID: "main"}, now)
	e.HandleEvent(Event{SessionID: "child", Phase: PhaseSubagentStopped}, now.Add(time.Second))

	// Within the linger window the stopped session is still listed.
	out := loop.Refresh(now.Add(10 * time.Second))
	assert.Equal(t, 1, out.Sessions)

	// Past the linger window it is evicted and persisted as gone.
	out = loop.Refresh(now.Add(45 * time.Second))
	assert.Equal(t, 0, out.Sessions)
	assert.Empty(t, e.Snapshot().Sessions)
}

func TestLoopRefresh_OutputCarriesSessionFields(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	loop := NewLoop(e, nil, now)

	e.HandleEvent(Event{
		SessionID:       "child",
		Phase:           PhasePreInvocation,
		Tool:            "Read",
		Input:           map[string]any{"file_path": "/p/a.go"},
		Cwd:             "/p/app",
		ParentSessionID: "main",
	}, now)

	out := loop.Refresh(now.Add(2 * time.Second))
	assert.Equal(t, "child", out.SessionID)
	assert.Equal(t, "/p/app", out.Cwd)
	assert.Equal(t, "main", out.ParentSessionID)
	assert.False(t, out.Stopped)

	// A stopped session lingering in the slot window reports stopped.
	e.HandleEvent(Event{SessionID: "child", Phase: PhaseSubagentStopped}, now.Add(3*time.Second))
	out = loop.Refresh(now.Add(5 * time.Second))
	assert.True(t, out.Stopped)
}

func TestLoopRefresh_IdleWithNoSessions(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	loop := NewLoop(e, nil, now)

	out := loop.Refresh(now)
	assert.Equal(t, string(activity.StateIdle), out.State)
	assert.Equal(t, 0, out.Sessions)
	assert.Empty(t, out.SessionID)
}
