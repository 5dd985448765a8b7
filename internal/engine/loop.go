package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/avelinecho/pixelpet/internal/activity"
	"github.com/avelinecho/pixelpet/internal/display"
	"github.com/avelinecho/pixelpet/internal/streak"
	"github.com/avelinecho/pixelpet/internal/watch"
)

const (
	// tickInterval drives eviction and the display state machine between
	// filesystem events.
	tickInterval = 500 * time.Millisecond

	// sleepAfter is how long an idle or waiting slot owner can sit before
	// the displayed state becomes sleeping.
	sleepAfter = 5 * time.Minute

	// noteMaxAge bounds how old an unconsumed status note can be before
	// startup cleanup removes it.
	noteMaxAge = 24 * time.Hour
)

// Output is one displayable record: the slot owner's buffered state plus
// summary counters. Consumers (stdout, websocket feed) render from this.
type Output struct {
	State           string `json:"state"`
	Detail          string `json:"detail,omitempty"`
	Label           string `json:"label,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	Stopped         bool   `json:"stopped,omitempty"`
	Cwd             string `json:"cwd,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Sessions        int    `json:"sessions"`
	Streak          int    `json:"streak"`
	BestStreak      int    `json:"best_streak"`
	Ts              int64  `json:"ts"`
}

// Broadcaster receives each changed Output. Implementations must not block.
type Broadcaster interface {
	Broadcast(Output)
}

// Loop is the long-running consumer: it watches the events directory,
// evicts dead sessions on a fixed tick, feeds the display state machine,
// and publishes changed outputs.
type Loop struct {
	eng  *Engine
	face *display.Face
	hub  Broadcaster

	last    Output
	hasLast bool
}

// NewLoop creates a consumer loop. hub may be nil.
func NewLoop(eng *Engine, hub Broadcaster, now time.Time) *Loop {
	face := display.New(now)
	face.SetDurations(toStateDurations(eng.cfg.Display.MinDisplayDurations()))
	return &Loop{eng: eng, face: face, hub: hub}
}

// Face exposes the display state machine, mainly for tests.
func (l *Loop) Face() *display.Face { return l.face }

// Run blocks until ctx is done. Status notes wake the loop immediately;
// the ticker covers eviction and pending display transitions in between.
func (l *Loop) Run(ctx context.Context) error {
	dir, err := watch.EventsDir()
	if err != nil {
		return err
	}
	watch.CleanupStale(dir, noteMaxAge, time.Now())

	notes := make(chan watch.StatusNote, 64)
	watcher, err := watch.NewWatcher(dir, func(n watch.StatusNote) {
		select {
		case notes <- n:
		default:
			// A full channel means a tick is imminent anyway.
		}
	})
	if err != nil {
		return err
	}
	go watcher.Run()
	defer watcher.Stop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	l.Refresh(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notes:
			l.Refresh(time.Now())
		case <-ticker.C:
			l.Refresh(time.Now())
		}
	}
}

// Refresh reloads persisted state, applies eviction, advances the display
// machine, and publishes the output when it changed.
func (l *Loop) Refresh(now time.Time) Output {
	reg := l.eng.loadRegistry()
	if evicted := reg.Evict(now); len(evicted) > 0 {
		for _, s := range evicted {
			log.Info("session_evicted",
				slog.String("session", s.ID),
				slog.Bool("stopped", s.Stopped),
			)
			if err := l.eng.st.DeleteSession(s.ID); err != nil {
				log.Warn("session_delete_failed", slog.String("error", err.Error()))
			}
			if err := l.eng.st.ReleaseSlot(s.ID); err != nil {
				log.Warn("slot_release_failed", slog.String("error", err.Error()))
			}
		}
		if err := l.eng.st.Touch(now); err != nil {
			log.Warn("touch_failed", slog.String("error", err.Error()))
		}
	}

	counters, _ := l.eng.st.LoadCounters()
	if streak.ClearExpiredMilestone(&counters, now) {
		if err := l.eng.st.SaveCounters(&counters); err != nil {
			log.Warn("counter_save_failed", slog.String("error", err.Error()))
		}
	}

	subject := reg.SlotOwner()
	if subject == nil {
		if live := reg.Sessions(); len(live) > 0 {
			subject = live[0]
		}
	}

	state, detail := activity.StateIdle, ""
	var label, sessionID, cwd, parentID string
	var stopped bool
	if subject != nil {
		state, detail = subject.State, subject.Detail
		label, sessionID = subject.Label, subject.ID
		stopped, cwd, parentID = subject.Stopped, subject.Cwd, subject.ParentSessionID
		if isRestful(state) && now.Sub(subject.LastUpdateAt) > sleepAfter {
			state, detail = activity.StateSleeping, "zzz"
		}
	}

	l.face.SetState(state, detail, now)
	l.face.Tick(now)

	out := Output{
		State:           string(l.face.State()),
		Detail:          l.face.Detail(),
		Label:           label,
		SessionID:       sessionID,
		Stopped:         stopped,
		Cwd:             cwd,
		ParentSessionID: parentID,
		Sessions:        len(reg.Sessions()),
		Streak:          counters.Streak,
		BestStreak:      counters.BestStreak,
		Ts:              now.UnixNano(),
	}
	l.publish(out)
	return out
}

func (l *Loop) publish(out Output) {
	if l.hasLast && sameOutput(l.last, out) {
		return
	}
	l.last = out
	l.hasLast = true
	if l.hub != nil {
		l.hub.Broadcast(out)
	}
}

// sameOutput ignores the timestamp so unchanged states are not re-published
// every tick.
func sameOutput(a, b Output) bool {
	a.Ts, b.Ts = 0, 0
	return a == b
}

func isRestful(s activity.State) bool {
	return s == activity.StateIdle || s == activity.StateWaiting
}

func toStateDurations(in map[string]time.Duration) map[activity.State]time.Duration {
	if len(in) == 0 {
		return nil
	}
	out := make(map[activity.State]time.Duration, len(in))
	for name, d := range in {
		state := activity.State(name)
		if state.Valid() {
			out[state] = d
		}
	}
	return out
}
