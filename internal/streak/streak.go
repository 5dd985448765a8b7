// Package streak tracks per-user success/failure streaks across tool
// results, including milestone celebrations and lightweight daily activity
// aggregates. The Counters record is loaded at the start of every event,
// mutated here, and persisted by the caller; nothing in this package does
// I/O or holds ambient state.
package streak

import (
	"path/filepath"
	"time"
)

// Milestones is the ordered set of streak lengths that trigger a
// celebration when reached exactly.
var Milestones = []int{10, 25, 50, 100, 200, 500}

// MilestoneFreshness is how long a stamped milestone counts as "fresh".
// Callers must clear expired milestones so repeated reads do not re-trigger
// the celebration.
const MilestoneFreshness = 5 * time.Second

// maxFrequentFiles bounds the frequent-file counter map. When full, new
// files are only admitted by evicting the current minimum.
const maxFrequentFiles = 50

// Rapid-fire thresholds: this many tool calls inside the window counts as
// a burst.
const (
	rapidFireCalls  = 30
	rapidFireWindow = 60 * time.Second
)

// Milestone records a streak length reached at a specific moment.
type Milestone struct {
	Streak    int       `json:"streak"`
	ReachedAt time.Time `json:"reached_at"`
}

// DayAggregate accumulates per-day activity. Date is a "2006-01-02" key;
// counters reset implicitly when the date rolls over.
type DayAggregate struct {
	Date          string `json:"date"`
	Sessions      int    `json:"sessions"`
	ActiveSeconds int64  `json:"active_seconds"`
}

// Counters is the durable streak/milestone record. It survives process
// exits; every hook invocation loads it, updates it, and writes it back.
type Counters struct {
	Streak          int            `json:"streak"`
	BestStreak      int            `json:"best_streak"`
	BrokenStreak    int            `json:"broken_streak"`
	BrokenStreakAt  time.Time      `json:"broken_streak_at"`
	TotalToolCalls  int64          `json:"total_tool_calls"`
	TotalErrors     int64          `json:"total_errors"`
	RecentMilestone *Milestone     `json:"recent_milestone,omitempty"`
	Today           DayAggregate   `json:"today"`
	FrequentFiles   map[string]int `json:"frequent_files,omitempty"`

	// RecentCalls holds the timestamps of the last few tool calls, capped
	// at rapidFireCalls, for burst detection across process invocations.
	RecentCalls []time.Time `json:"recent_calls,omitempty"`
}

// Update applies one classified tool result to the counters. On success the
// streak grows, the best streak ratchets, and a milestone is stamped when
// the new streak length is exactly one of Milestones. On failure the
// pre-reset streak is recorded as the broken streak and the streak resets.
func Update(c *Counters, isFailure bool, now time.Time) {
	UpdateWith(c, isFailure, nil, now)
}

// UpdateWith is Update with a caller-supplied milestone set. A nil set
// falls back to Milestones.
func UpdateWith(c *Counters, isFailure bool, milestones []int, now time.Time) {
	if milestones == nil {
		milestones = Milestones
	}
	if isFailure {
		c.BrokenStreak = c.Streak
		c.BrokenStreakAt = now
		c.Streak = 0
		c.TotalErrors++
		return
	}

	c.Streak++
	if c.Streak > c.BestStreak {
		c.BestStreak = c.Streak
	}
	for _, m := range milestones {
		if c.Streak == m {
			c.RecentMilestone = &Milestone{Streak: m, ReachedAt: now}
			break
		}
	}
}

// RecordToolCall bumps the lifetime tool-call counter and, when the tool
// touched a file, the frequent-file counter for its basename.
func RecordToolCall(c *Counters, filePath string, now time.Time) {
	c.TotalToolCalls++
	rollDay(c, now)

	c.RecentCalls = append(c.RecentCalls, now)
	if len(c.RecentCalls) > rapidFireCalls {
		c.RecentCalls = c.RecentCalls[len(c.RecentCalls)-rapidFireCalls:]
	}

	if filePath == "" {
		return
	}
	base := filepath.Base(filePath)
	if c.FrequentFiles == nil {
		c.FrequentFiles = make(map[string]int)
	}
	if _, known := c.FrequentFiles[base]; !known && len(c.FrequentFiles) >= maxFrequentFiles {
		evictLeastFrequent(c.FrequentFiles)
	}
	c.FrequentFiles[base]++
}

// RecordSessionStart counts a new session toward today's aggregate.
func RecordSessionStart(c *Counters, now time.Time) {
	rollDay(c, now)
	c.Today.Sessions++
}

// RecordActiveTime adds elapsed active time to today's aggregate.
func RecordActiveTime(c *Counters, d time.Duration, now time.Time) {
	if d <= 0 {
		return
	}
	rollDay(c, now)
	c.Today.ActiveSeconds += int64(d.Seconds())
}

// MilestoneFresh reports whether the recent milestone is still inside its
// freshness window.
func MilestoneFresh(c *Counters, now time.Time) bool {
	if c.RecentMilestone == nil {
		return false
	}
	return now.Sub(c.RecentMilestone.ReachedAt) < MilestoneFreshness
}

// ClearExpiredMilestone drops the recent milestone once its freshness
// window has elapsed. Returns true when something was cleared.
func ClearExpiredMilestone(c *Counters, now time.Time) bool {
	if c.RecentMilestone == nil || MilestoneFresh(c, now) {
		return false
	}
	c.RecentMilestone = nil
	return true
}

// RapidFire reports whether the last rapidFireCalls tool calls all landed
// inside the burst window ending at now.
func RapidFire(c *Counters, now time.Time) bool {
	if len(c.RecentCalls) < rapidFireCalls {
		return false
	}
	oldest := c.RecentCalls[0]
	return now.Sub(oldest) <= rapidFireWindow
}

// rollDay resets the daily aggregate when the calendar date changes.
func rollDay(c *Counters, now time.Time) {
	date := now.Format("2006-01-02")
	if c.Today.Date != date {
		c.Today = DayAggregate{Date: date}
	}
}

// evictLeastFrequent removes one minimum-count entry to make room.
func evictLeastFrequent(files map[string]int) {
	minName, minCount := "", -1
	for name, count := range files {
		if minCount == -1 || count < minCount {
			minName, minCount = name, count
		}
	}
	if minName != "" {
		delete(files, minName)
	}
}
