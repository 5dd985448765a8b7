// Package engine turns canonical hook events into session state. Each hook
// invocation is a separate short-lived process: HandleEvent loads everything
// it needs from the store, applies one event, and writes everything back.
// Every persistence failure is logged and swallowed; a hook must never break
// the tool it observes.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/avelinecho/pixelpet/internal/activity"
	"github.com/avelinecho/pixelpet/internal/classify"
	"github.com/avelinecho/pixelpet/internal/config"
	"github.com/avelinecho/pixelpet/internal/logging"
	"github.com/avelinecho/pixelpet/internal/registry"
	"github.com/avelinecho/pixelpet/internal/store"
	"github.com/avelinecho/pixelpet/internal/streak"
	"github.com/avelinecho/pixelpet/internal/watch"
)

var log = logging.ForComponent(logging.CompEngine)

// activeGapMax caps the per-event gap counted toward daily active seconds.
// Gaps longer than this are idle time, not activity.
const activeGapMax = 5 * time.Minute

// Engine applies events against the persistent store.
type Engine struct {
	st  *store.Store
	cfg *config.Config
}

// New creates an engine over the given store and config.
func New(st *store.Store, cfg *config.Config) *Engine {
	return &Engine{st: st, cfg: cfg}
}

// HandleEvent processes one canonical event at the given time. It never
// returns an error: classification is total and persistence failures
// degrade to in-memory state for this invocation.
func (e *Engine) HandleEvent(ev Event, now time.Time) {
	if ev.SessionID == "" {
		log.Debug("event_without_session", slog.String("phase", ev.Phase))
		return
	}

	reg := e.loadRegistry()
	counters, loaded := e.st.LoadCounters()
	if !loaded {
		log.Debug("counters_fallback")
	}

	prev := reg.Get(ev.SessionID)
	if prev == nil {
		streak.RecordSessionStart(&counters, now)
	} else if gap := now.Sub(prev.LastUpdateAt); gap > 0 && gap <= activeGapMax {
		streak.RecordActiveTime(&counters, gap, now)
	}

	var state activity.State
	var detail string
	claimSlot := false
	releaseSlot := false

	switch ev.Phase {
	case PhasePreInvocation:
		res := classify.Classify(ev.Tool, ev.Input)
		streak.RecordToolCall(&counters, classify.FilePath(ev.Input), now)
		state, detail = res.State, res.Detail
		if !state.IsFailure() && streak.RapidFire(&counters, now) {
			state = activity.StateCaffeinated
		}
		claimSlot = true

	case PhasePostInvocation:
		var res classify.ToolResult
		if ev.Result != nil {
			res = classify.ToolResult{
				Text:      ev.Result.Text,
				Stderr:    ev.Result.Stderr,
				ErrorFlag: ev.Result.ErrorFlag,
			}
		}
		out := classify.ClassifyResult(ev.Tool, ev.Input, res)
		streak.UpdateWith(&counters, out.State.IsFailure(), e.cfg.Streak.ValidMilestones(), now)
		state, detail = out.State, out.Detail
		if !out.State.IsFailure() && streak.MilestoneFresh(&counters, now) {
			state = activity.StateHappy
			detail = fmt.Sprintf("%d in a row!", counters.RecentMilestone.Streak)
		}

	case PhaseTurnStarted:
		state, detail = activity.StateThinking, "pondering..."

	case PhaseTurnEnded:
		state, detail = activity.StateWaiting, "waiting for input"

	case PhaseNotify:
		state, detail = activity.StateWaiting, ev.Message

	case PhaseSubagentStarted:
		state, detail = activity.StateSubagent, "delegating"

	case PhaseSubagentStopped:
		reg.MarkStopped(ev.SessionID, now)
		releaseSlot = true

	default:
		log.Debug("unknown_phase",
			slog.String("phase", ev.Phase),
			slog.String("session", ev.SessionID),
		)
		return
	}

	if ev.Phase != PhaseSubagentStopped {
		reg.Upsert(ev.SessionID, state, detail, ev.Cwd, ev.ParentSessionID, now)
	}

	streak.ClearExpiredMilestone(&counters, now)
	reg.Evict(now)
	e.persist(reg, &counters, now)

	// The in-memory slot rule decides against the loaded view; the CAS
	// UPDATE makes the claim durable against concurrent hook processes.
	if claimSlot && reg.Claim(ev.SessionID, now) {
		if _, err := e.st.ClaimSlot(ev.SessionID, now, e.cfg.Registry.SlotFreshness()); err != nil {
			log.Warn("slot_claim_failed", slog.String("error", err.Error()))
		}
	}
	if releaseSlot {
		if err := e.st.ReleaseSlot(ev.SessionID); err != nil {
			log.Warn("slot_release_failed", slog.String("error", err.Error()))
		}
	}

	if sess := reg.Get(ev.SessionID); sess != nil {
		note := watch.StatusNote{
			SessionID: sess.ID,
			State:     string(sess.State),
			Detail:    sess.Detail,
			Ts:        now.UnixNano(),
		}
		if err := watch.WriteNote(note); err != nil {
			log.Warn("note_write_failed", slog.String("error", err.Error()))
		}
	}
}

// Snapshot is the persisted state of the engine at one instant.
type Snapshot struct {
	Sessions  []*registry.Session `json:"sessions"`
	SlotOwner string              `json:"slot_owner,omitempty"`
	Counters  streak.Counters     `json:"counters"`
	UpdatedAt time.Time           `json:"updated_at,omitzero"`
}

// Snapshot loads the current sessions, slot owner, counters, and the last
// store modification time. Read-only.
func (e *Engine) Snapshot() Snapshot {
	reg := e.loadRegistry()
	counters, _ := e.st.LoadCounters()
	var owner string
	if s := reg.SlotOwner(); s != nil {
		owner = s.ID
	}
	updated, err := e.st.LastModified()
	if err != nil {
		log.Warn("last_modified_failed", slog.String("error", err.Error()))
	}
	return Snapshot{
		Sessions:  reg.Sessions(),
		SlotOwner: owner,
		Counters:  counters,
		UpdatedAt: updated,
	}
}

// loadRegistry builds a registry from persisted sessions. A load failure
// yields an empty registry; the event proceeds and the next successful
// hook rebuilds state.
func (e *Engine) loadRegistry() *registry.Registry {
	reg := registry.New(
		registry.WithStaleAfter(e.cfg.Registry.StaleAfter()),
		registry.WithLinger(e.cfg.Registry.Linger()),
		registry.WithSlotFreshness(e.cfg.Registry.SlotFreshness()),
	)
	sessions, err := e.st.LoadSessions()
	if err != nil {
		log.Warn("session_load_failed", slog.String("error", err.Error()))
		return reg
	}
	owner, err := e.st.SlotOwner()
	if err != nil {
		log.Warn("slot_load_failed", slog.String("error", err.Error()))
	}
	reg.Load(sessions, owner)
	return reg
}

// persist writes the session set and counters back.
func (e *Engine) persist(reg *registry.Registry, counters *streak.Counters, now time.Time) {
	if err := e.st.SaveSessions(reg.Sessions()); err != nil {
		log.Warn("session_save_failed", slog.String("error", err.Error()))
	}
	if err := e.st.SaveCounters(counters); err != nil {
		log.Warn("counter_save_failed", slog.String("error", err.Error()))
	}
	if err := e.st.Touch(now); err != nil {
		log.Warn("touch_failed", slog.String("error", err.Error()))
	}
}
