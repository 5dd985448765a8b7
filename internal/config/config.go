// Package config loads user configuration from ~/.pixelpet/config.toml.
// Every knob has a default; a missing or malformed file never stops the
// program, it just falls back to defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file for user preferences.
const FileName = "config.toml"

// DirName is the dot-directory under the user's home holding all
// pixelpet state (config, database, event files, logs).
const DirName = ".pixelpet"

// Config represents user-facing configuration in TOML format.
type Config struct {
	// Registry controls session bookkeeping and the shared slot.
	Registry RegistrySettings `toml:"registry"`

	// Display controls minimum display times for the state machine.
	Display DisplaySettings `toml:"display"`

	// Streak controls milestone behavior.
	Streak StreakSettings `toml:"streak"`

	// Logs controls debug log output and rotation.
	Logs LogSettings `toml:"logs"`

	// Feed controls the optional websocket status feed.
	Feed FeedSettings `toml:"feed"`
}

// RegistrySettings controls session staleness, linger, and slot arbitration.
type RegistrySettings struct {
	// StaleAfterSecs is seconds without an update before a session is
	// considered stale and evicted (default: 1800).
	StaleAfterSecs int `toml:"stale_after_secs"`

	// LingerSecs is seconds a stopped session remains visible before
	// eviction (default: 30).
	LingerSecs int `toml:"linger_secs"`

	// SlotFreshnessSecs is seconds since the slot owner's last update
	// within which the slot cannot be taken over (default: 10).
	SlotFreshnessSecs int `toml:"slot_freshness_secs"`
}

// DisplaySettings controls per-state minimum display durations.
type DisplaySettings struct {
	// MinDisplayMillis overrides minimum display time per state, in
	// milliseconds. Keys are state names (e.g. "error", "happy").
	MinDisplayMillis map[string]int `toml:"min_display_millis"`

	// DefaultMinMillis is the minimum display time for states without
	// an explicit entry (default: 1500).
	DefaultMinMillis int `toml:"default_min_millis"`
}

// StreakSettings controls milestone behavior.
type StreakSettings struct {
	// Milestones overrides the celebrated streak counts.
	// Must be ascending; invalid values are ignored.
	Milestones []int `toml:"milestones"`
}

// LogSettings controls the debug log file.
type LogSettings struct {
	// Debug enables logging to ~/.pixelpet/pixelpet.log (default: false).
	Debug bool `toml:"debug"`

	// Level sets the minimum log level: "debug", "info", "warn", "error".
	// Default: "info".
	Level string `toml:"level"`

	// Format sets the log format: "json" (default) or "text".
	Format string `toml:"format"`

	// MaxSizeMB is the max size in MB before rotation (default: 10).
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep (default: 3).
	MaxBackups int `toml:"max_backups"`

	// RetentionDays is days to keep rotated logs (default: 10).
	RetentionDays int `toml:"retention_days"`
}

// FeedSettings controls the websocket status feed served by `pixelpet watch --serve`.
type FeedSettings struct {
	// Addr is the listen address (default: "127.0.0.1:7331").
	Addr string `toml:"addr"`

	// BroadcastHz caps status pushes per second per connection (default: 10).
	BroadcastHz int `toml:"broadcast_hz"`
}

var (
	cache   *Config
	cacheMu sync.RWMutex
)

// Dir returns the pixelpet state directory, creating nothing.
func Dir() (string, error) {
	if override := os.Getenv("PIXELPET_DIR"); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns the path to the user config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the user configuration, applying defaults for anything unset.
// Returns cached config after first load. A parse error is returned to the
// caller for display, but the returned config is always usable (defaults).
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	cfg := defaults()

	path, err := Path()
	if err != nil {
		cache = cfg
		return cache, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cache = cfg
		return cache, nil
	}

	var loaded Config
	if _, err := toml.DecodeFile(path, &loaded); err != nil {
		cache = cfg
		return cache, fmt.Errorf("config.toml parse error: %w", err)
	}

	applyDefaults(&loaded)
	cache = &loaded
	return cache, nil
}

// Reset clears the cached config so the next Load reads from disk.
func Reset() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

func defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Registry.StaleAfterSecs <= 0 {
		cfg.Registry.StaleAfterSecs = 1800
	}
	if cfg.Registry.LingerSecs <= 0 {
		cfg.Registry.LingerSecs = 30
	}
	if cfg.Registry.SlotFreshnessSecs <= 0 {
		cfg.Registry.SlotFreshnessSecs = 10
	}
	if cfg.Display.DefaultMinMillis <= 0 {
		cfg.Display.DefaultMinMillis = 1500
	}
	if cfg.Logs.Level == "" {
		cfg.Logs.Level = "info"
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 10
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 3
	}
	if cfg.Logs.RetentionDays <= 0 {
		cfg.Logs.RetentionDays = 10
	}
	if cfg.Feed.Addr == "" {
		cfg.Feed.Addr = "127.0.0.1:7331"
	}
	if cfg.Feed.BroadcastHz <= 0 {
		cfg.Feed.BroadcastHz = 10
	}
}

// StaleAfter returns the session staleness window as a Duration.
func (r RegistrySettings) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterSecs) * time.Second
}

// Linger returns the stopped-session linger window as a Duration.
func (r RegistrySettings) Linger() time.Duration {
	return time.Duration(r.LingerSecs) * time.Second
}

// SlotFreshness returns the slot takeover freshness window as a Duration.
func (r RegistrySettings) SlotFreshness() time.Duration {
	return time.Duration(r.SlotFreshnessSecs) * time.Second
}

// MinDisplayDurations converts the millisecond override map to Durations.
// Unknown state names are kept; the display layer ignores what it does
// not recognize.
func (d DisplaySettings) MinDisplayDurations() map[string]time.Duration {
	if len(d.MinDisplayMillis) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(d.MinDisplayMillis))
	for state, ms := range d.MinDisplayMillis {
		if ms <= 0 {
			continue
		}
		out[state] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// ValidMilestones returns the configured milestone list if it is strictly
// ascending and positive, nil otherwise.
func (s StreakSettings) ValidMilestones() []int {
	if len(s.Milestones) == 0 {
		return nil
	}
	prev := 0
	for _, m := range s.Milestones {
		if m <= prev {
			return nil
		}
		prev = m
	}
	return s.Milestones
}

// Save writes the config to config.toml using the atomic write pattern
// and clears the cache so the next Load reads fresh values.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# pixelpet configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize config save: %w", err)
	}

	Reset()
	return nil
}
