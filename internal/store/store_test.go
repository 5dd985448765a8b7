package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/avelinecho/pixelpet/internal/activity"
	"github.com/avelinecho/pixelpet/internal/registry"
	"github.com/avelinecho/pixelpet/internal/streak"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadSessions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Truncate(time.Second)

	sessions := []*registry.Session{
		{ID: "a", CreatedAt: now, LastUpdateAt: now, State: activity.StateCoding, Detail: "main.go", Cwd: "/p/app", Label: "app"},
		{ID: "b", CreatedAt: now.Add(time.Second), LastUpdateAt: now.Add(time.Second), State: activity.StateSubagent, ParentSessionID: "a", Stopped: true, StoppedAt: now.Add(2 * time.Second)},
	}
	if err := s.SaveSessions(sessions); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	loaded, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(loaded))
	}
	if loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Errorf("wrong order: %s, %s", loaded[0].ID, loaded[1].ID)
	}
	if loaded[0].State != activity.StateCoding || loaded[0].Detail != "main.go" {
		t.Errorf("session a mismatch: %+v", loaded[0])
	}
	if !loaded[1].Stopped || loaded[1].StoppedAt.IsZero() {
		t.Errorf("stopped flag lost: %+v", loaded[1])
	}
	if loaded[1].ParentSessionID != "a" {
		t.Errorf("parent lost: %+v", loaded[1])
	}
}

func TestSaveSessions_RemovesAbsentRows(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if err := s.SaveSessions([]*registry.Session{
		{ID: "gone", CreatedAt: now, LastUpdateAt: now, State: activity.StateIdle},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if err := s.SaveSessions([]*registry.Session{
		{ID: "kept", CreatedAt: now, LastUpdateAt: now, State: activity.StateIdle},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	loaded, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "kept" {
		t.Fatalf("evicted session resurrected: %+v", loaded)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if err := s.SaveSessions([]*registry.Session{
		{ID: "a", CreatedAt: now, LastUpdateAt: now, State: activity.StateIdle},
		{ID: "b", CreatedAt: now, LastUpdateAt: now, State: activity.StateCoding},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	if err := s.DeleteSession("a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	loaded, err := s.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "b" {
		t.Fatalf("expected only b to remain: %+v", loaded)
	}

	// Deleting an unknown id is a no-op.
	if err := s.DeleteSession("a"); err != nil {
		t.Fatalf("DeleteSession repeat: %v", err)
	}
}

func TestClaimSlot_VacantThenHeld(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	fresh := &registry.Session{ID: "main", CreatedAt: now, LastUpdateAt: now, State: activity.StateCoding}
	sub := &registry.Session{ID: "sub", CreatedAt: now, LastUpdateAt: now, State: activity.StateSubagent}
	if err := s.SaveSessions([]*registry.Session{fresh, sub}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	ok, err := s.ClaimSlot("main", now, 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	// A fresh owner blocks challengers.
	ok, err = s.ClaimSlot("sub", now.Add(2*time.Second), 10*time.Second)
	if err != nil {
		t.Fatalf("challenge claim: %v", err)
	}
	if ok {
		t.Error("sub claimed slot while main was fresh")
	}

	// Re-claim by the owner always succeeds.
	ok, _ = s.ClaimSlot("main", now.Add(time.Hour), 10*time.Second)
	if !ok {
		t.Error("owner could not re-claim")
	}
}

func TestClaimSlot_StaleOwnerSuperseded(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if err := s.SaveSessions([]*registry.Session{
		{ID: "main", CreatedAt: now, LastUpdateAt: now, State: activity.StateCoding},
		{ID: "sub", CreatedAt: now, LastUpdateAt: now.Add(15 * time.Second), State: activity.StateSubagent},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	if ok, _ := s.ClaimSlot("main", now, 10*time.Second); !ok {
		t.Fatal("main claim failed")
	}

	// 15s later, main has not updated; sub supersedes.
	ok, err := s.ClaimSlot("sub", now.Add(15*time.Second), 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("stale supersede: ok=%v err=%v", ok, err)
	}

	owner, err := s.SlotOwner()
	if err != nil {
		t.Fatalf("SlotOwner: %v", err)
	}
	if owner != "sub" {
		t.Errorf("owner = %q, want sub", owner)
	}
}

func TestClaimSlot_StoppedOwnerSuperseded(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if err := s.SaveSessions([]*registry.Session{
		{ID: "main", CreatedAt: now, LastUpdateAt: now, State: activity.StateWaiting, Stopped: true, StoppedAt: now},
		{ID: "sub", CreatedAt: now, LastUpdateAt: now, State: activity.StateSubagent},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	if ok, _ := s.ClaimSlot("main", now, 10*time.Second); !ok {
		t.Fatal("main claim failed")
	}
	if ok, _ := s.ClaimSlot("sub", now.Add(time.Second), 10*time.Second); !ok {
		t.Error("stopped owner should be superseded")
	}
}

func TestClaimSlot_VanishedOwnerSuperseded(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if err := s.SaveSessions([]*registry.Session{
		{ID: "main", CreatedAt: now, LastUpdateAt: now, State: activity.StateCoding},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if ok, _ := s.ClaimSlot("main", now, 10*time.Second); !ok {
		t.Fatal("main claim failed")
	}

	// Owner row evicted; any session may claim.
	if err := s.SaveSessions([]*registry.Session{
		{ID: "next", CreatedAt: now, LastUpdateAt: now, State: activity.StateIdle},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if ok, _ := s.ClaimSlot("next", now.Add(time.Second), 10*time.Second); !ok {
		t.Error("vanished owner should be superseded")
	}
}

func TestReleaseSlot(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	if err := s.SaveSessions([]*registry.Session{
		{ID: "main", CreatedAt: now, LastUpdateAt: now, State: activity.StateIdle},
	}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if ok, _ := s.ClaimSlot("main", now, time.Second); !ok {
		t.Fatal("claim failed")
	}

	// Releasing with the wrong id is a no-op.
	if err := s.ReleaseSlot("other"); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	owner, _ := s.SlotOwner()
	if owner != "main" {
		t.Errorf("owner = %q, want main", owner)
	}

	if err := s.ReleaseSlot("main"); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	owner, _ = s.SlotOwner()
	if owner != "" {
		t.Errorf("owner = %q, want vacant", owner)
	}
}

func TestCounters_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	// Empty database: zero counters, ok=false.
	c, ok := s.LoadCounters()
	if ok {
		t.Error("expected ok=false on empty database")
	}
	if c.Streak != 0 {
		t.Errorf("expected zero counters, got %+v", c)
	}

	c.Streak = 7
	c.BestStreak = 25
	c.TotalToolCalls = 100
	c.FrequentFiles = map[string]int{"main.go": 12}
	if err := s.SaveCounters(&c); err != nil {
		t.Fatalf("SaveCounters: %v", err)
	}

	// singleflight memoizes per-flight, not forever: a fresh load sees the save.
	loaded, ok := s.LoadCounters()
	if !ok {
		t.Fatal("expected ok=true after save")
	}
	if loaded.Streak != 7 || loaded.BestStreak != 25 || loaded.TotalToolCalls != 100 {
		t.Errorf("counters mismatch: %+v", loaded)
	}
	if loaded.FrequentFiles["main.go"] != 12 {
		t.Errorf("frequent files lost: %+v", loaded.FrequentFiles)
	}
}

func TestCounters_CorruptBlobFallsBack(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.db.Exec(`INSERT INTO counters (id, data) VALUES (1, 'not json')`); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	c, ok := s.LoadCounters()
	if ok {
		t.Error("expected ok=false for corrupt blob")
	}
	if c.Streak != 0 {
		t.Errorf("expected zero counters, got %+v", c)
	}
}

func TestTouchAndLastModified(t *testing.T) {
	s := newTestStore(t)

	ts, err := s.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("expected zero time before Touch, got %v", ts)
	}

	now := time.Now()
	if err := s.Touch(now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	ts, err = s.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	if !ts.Equal(time.Unix(0, now.UnixNano())) {
		t.Errorf("LastModified = %v, want %v", ts, now)
	}
}

func TestStreakIntegration(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	c, _ := s.LoadCounters()
	for i := 0; i < 10; i++ {
		streak.Update(&c, false, now)
	}
	if err := s.SaveCounters(&c); err != nil {
		t.Fatalf("SaveCounters: %v", err)
	}

	loaded, ok := s.LoadCounters()
	if !ok {
		t.Fatal("load after save")
	}
	if loaded.RecentMilestone == nil || loaded.RecentMilestone.Streak != 10 {
		t.Errorf("milestone lost through persistence: %+v", loaded.RecentMilestone)
	}
}
