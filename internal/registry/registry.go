// Package registry owns the set of live agent sessions. It decides which
// single session may write to the shared display slot, evicts sessions that
// went stale or finished, and derives the human-friendly label each session
// carries when several coexist.
//
// The registry holds no clock and does no I/O: every operation takes an
// explicit timestamp, and the caller persists the records. Eviction is a
// pure function of wall-clock time relative to stored timestamps, so the
// consuming loop must re-run it on every tick, not only on new events: a
// session can go stale without ever producing another event.
package registry

import (
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/avelinecho/pixelpet/internal/activity"
)

// Timing defaults. All three are configurable via the user config.
const (
	// DefaultStaleAfter is how long a session may go without updates
	// before it is treated as abandoned and evicted.
	DefaultStaleAfter = 30 * time.Minute

	// DefaultLinger is how long a stopped session stays visible, long
	// enough for a human to read the completion state.
	DefaultLinger = 30 * time.Second

	// DefaultSlotFreshness is how recently the slot owner must have
	// updated for its claim to hold against challengers.
	DefaultSlotFreshness = 10 * time.Second
)

// Session is one tracked agent session, primary or delegated.
type Session struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	LastUpdateAt    time.Time      `json:"last_update_at"`
	State           activity.State `json:"state"`
	Detail          string         `json:"detail"`
	Stopped         bool           `json:"stopped"`
	StoppedAt       time.Time      `json:"stopped_at,omitempty"`
	Cwd             string         `json:"cwd,omitempty"`
	ParentSessionID string         `json:"parent_session_id,omitempty"`
	Label           string         `json:"label,omitempty"` // derived, not authoritative
}

// Registry arbitrates the live session set and the shared slot.
type Registry struct {
	sessions      map[string]*Session
	slotOwner     string
	staleAfter    time.Duration
	linger        time.Duration
	slotFreshness time.Duration
}

// Option tunes a Registry.
type Option func(*Registry)

// WithStaleAfter overrides the staleness eviction window.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) { r.staleAfter = d }
}

// WithLinger overrides the stopped-session linger window.
func WithLinger(d time.Duration) Option {
	return func(r *Registry) { r.linger = d }
}

// WithSlotFreshness overrides the slot-ownership freshness window.
func WithSlotFreshness(d time.Duration) Option {
	return func(r *Registry) { r.slotFreshness = d }
}

// New creates an empty registry with default timing.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions:      make(map[string]*Session),
		staleAfter:    DefaultStaleAfter,
		linger:        DefaultLinger,
		slotFreshness: DefaultSlotFreshness,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the registry contents with previously persisted sessions.
// The slot owner is re-derived on the next Claim or Tick.
func (r *Registry) Load(sessions []*Session, slotOwner string) {
	r.sessions = make(map[string]*Session, len(sessions))
	for _, s := range sessions {
		copied := *s
		r.sessions[s.ID] = &copied
	}
	r.slotOwner = slotOwner
	r.relabel()
}

// Upsert applies a state update for a session, creating the record on first
// sight. Stopped is monotone: once a session stopped, later updates keep it
// stopped.
func (r *Registry) Upsert(id string, state activity.State, detail, cwd, parentID string, now time.Time) *Session {
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{
			ID:        id,
			CreatedAt: now,
		}
		r.sessions[id] = s
		defer r.relabel()
	}
	s.State = state
	s.Detail = detail
	s.LastUpdateAt = now
	if cwd != "" {
		s.Cwd = cwd
	}
	if parentID != "" {
		s.ParentSessionID = parentID
	}
	return s
}

// MarkStopped flips a session to stopped. The flip never reverts.
func (r *Registry) MarkStopped(id string, now time.Time) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	if !s.Stopped {
		s.Stopped = true
		s.StoppedAt = now
	}
	s.LastUpdateAt = now
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	return r.sessions[id]
}

// Sessions returns the live sessions ordered by creation time.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SlotOwner returns the session currently owning the shared display slot,
// or nil when the slot is vacant.
func (r *Registry) SlotOwner() *Session {
	if r.slotOwner == "" {
		return nil
	}
	return r.sessions[r.slotOwner]
}

// Claim attempts to give the shared slot to the named session. The claim
// succeeds when the slot is vacant, already held by the claimant, held by a
// stopped session, or held by a session whose last update is older than the
// freshness window. This keeps a delegated sub-agent's noisy tool calls
// from hijacking the display while the main session is still active, yet
// lets a dead or finished owner be superseded promptly.
func (r *Registry) Claim(id string, now time.Time) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	owner, held := r.sessions[r.slotOwner]
	switch {
	case r.slotOwner == "" || !held:
		// vacant
	case r.slotOwner == id:
		return true
	case owner.Stopped:
		// finished owner, supersede
	case now.Sub(owner.LastUpdateAt) > r.slotFreshness:
		// abandoned owner, supersede
	default:
		return false
	}
	r.slotOwner = id
	return true
}

// Evict removes sessions that went stale or outlived their linger window
// and returns the removed records. It vacates the slot when the owner is
// evicted and recomputes labels when the set changed.
func (r *Registry) Evict(now time.Time) []*Session {
	var removed []*Session
	for id, s := range r.sessions {
		stale := now.Sub(s.LastUpdateAt) >= r.staleAfter
		lingered := s.Stopped && now.Sub(s.StoppedAt) >= r.linger
		if !stale && !lingered {
			continue
		}
		removed = append(removed, s)
		delete(r.sessions, id)
		if r.slotOwner == id {
			r.slotOwner = ""
		}
	}
	if len(removed) > 0 {
		r.relabel()
	}
	return removed
}

// relabel recomputes every session's display label. A lone session is
// labeled by its working-directory basename. When several sessions share a
// basename, the earliest-created one is "main" and later ones "sub-1",
// "sub-2", …; sessions with a unique basename keep the basename. Labels
// shift as sessions come and go, which is why this runs on every set change.
func (r *Registry) relabel() {
	ordered := r.Sessions()
	if len(ordered) == 0 {
		return
	}
	if len(ordered) == 1 {
		ordered[0].Label = cwdBase(ordered[0].Cwd)
		return
	}

	byBase := make(map[string][]*Session)
	for _, s := range ordered {
		base := cwdBase(s.Cwd)
		byBase[base] = append(byBase[base], s)
	}
	for base, group := range byBase {
		if len(group) == 1 {
			group[0].Label = base
			continue
		}
		for i, s := range group {
			if i == 0 {
				s.Label = "main"
			} else {
				s.Label = subLabel(i)
			}
		}
	}
}

func subLabel(i int) string {
	return "sub-" + strconv.Itoa(i)
}

func cwdBase(cwd string) string {
	if cwd == "" {
		return "agent"
	}
	base := filepath.Base(cwd)
	if base == "." || base == string(filepath.Separator) {
		return "agent"
	}
	return base
}
