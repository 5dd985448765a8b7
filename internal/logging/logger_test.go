package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitDiscardsWithoutLogDir(t *testing.T) {
	Init(Config{})
	defer Shutdown()

	log := ForComponent(CompEngine)
	log.Info("should vanish")

	if got := globalRing.Len(); got != 0 {
		t.Errorf("ring buffer holds %d bytes, want 0", got)
	}
}

func TestForComponentPicksUpLateInit(t *testing.T) {
	Shutdown()

	// Created before Init, must still log through the configured handler.
	log := ForComponent(CompStore)

	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	log.Info("late binding", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, "pixelpet.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, line)
	}
	if entry["component"] != CompStore {
		t.Errorf("component = %v, want %q", entry["component"], CompStore)
	}
	if entry["msg"] != "late binding" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v", entry["key"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn"})
	defer Shutdown()

	log := ForComponent(CompWatch)
	log.Info("filtered out")
	log.Warn("kept")

	data, _ := os.ReadFile(filepath.Join(dir, "pixelpet.log"))
	if strings.Contains(string(data), "filtered out") {
		t.Error("info line logged despite warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn line missing")
	}
}

func TestDumpRingBuffer(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug"})
	defer Shutdown()

	ForComponent(CompCLI).Info("buffered entry")

	dump := filepath.Join(dir, "crash.log")
	if err := DumpRingBuffer(dump); err != nil {
		t.Fatalf("DumpRingBuffer: %v", err)
	}
	data, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "buffered entry") {
		t.Errorf("dump missing entry: %q", data)
	}
}
