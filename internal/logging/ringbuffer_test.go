package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRingBufferBelowCapacity(t *testing.T) {
	rb := NewRingBuffer(32)
	rb.Write([]byte("hello "))
	rb.Write([]byte("world"))

	if got := string(rb.Bytes()); got != "hello world" {
		t.Errorf("Bytes() = %q, want %q", got, "hello world")
	}
	if rb.Len() != 11 {
		t.Errorf("Len() = %d, want 11", rb.Len())
	}
}

func TestRingBufferWrapKeepsNewest(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("abcdef"))
	rb.Write([]byte("ghij"))

	if got := string(rb.Bytes()); got != "cdefghij" {
		t.Errorf("Bytes() = %q, want %q", got, "cdefghij")
	}
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("0123456789"))

	if got := string(rb.Bytes()); got != "6789" {
		t.Errorf("Bytes() = %q, want %q", got, "6789")
	}
}

func TestRingBufferManyWrites(t *testing.T) {
	rb := NewRingBuffer(16)
	for i := 0; i < 100; i++ {
		rb.Write([]byte("ab"))
	}
	want := strings.Repeat("ab", 8)
	if got := string(rb.Bytes()); got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(64)
	rb.Write([]byte("log line one\n"))
	rb.Write([]byte("log line two\n"))

	path := filepath.Join(t.TempDir(), "dump.log")
	if err := rb.DumpToFile(path); err != nil {
		t.Fatalf("DumpToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("log line one\nlog line two\n")) {
		t.Errorf("dumped %q", data)
	}
}
