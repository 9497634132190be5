package layout

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestEventLogNotRunning tests that entries are refused before Start.
func TestEventLogNotRunning(t *testing.T) {
	el := NewEventLog()
	if el.Emit(LogStart, 0, StartPayload{Alpha: 1}) {
		t.Error("Emit should refuse entries before Start")
	}
	if el.GetTotalCount() != 0 {
		t.Errorf("Expected 0 accepted entries, got %d", el.GetTotalCount())
	}
}

// TestEventLogWritesJSONL tests the end-to-end path: emit, flush on stop,
// decode the file back.
func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	el := NewEventLog()
	if err := el.Start(path); err != nil {
		t.Fatalf("Failed to start event log: %v", err)
	}

	el.Emit(LogInit, 0, InitPayload{NodeCount: 10, EdgeCount: 4})
	el.Emit(LogStart, 0, StartPayload{Alpha: 1})
	el.Emit(LogEnd, 42, EndPayload{TotalTicks: 42, TotalTimeMs: 700})
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open audit file: %v", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("Bad JSONL line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	wantNames := []string{"init", "start", "end"}
	for i, entry := range entries {
		if entry.Name != wantNames[i] {
			t.Errorf("Entry %d name %q, want %q", i, entry.Name, wantNames[i])
		}
		if entry.Version != 1 {
			t.Errorf("Entry %d version %d, want 1", i, entry.Version)
		}
		if entry.Sequence != uint64(i+1) {
			t.Errorf("Entry %d sequence %d, want %d", i, entry.Sequence, i+1)
		}
		if entry.Timestamp == 0 {
			t.Errorf("Entry %d has no timestamp", i)
		}
	}

	var end EndPayload
	if err := json.Unmarshal(entries[2].Payload, &end); err != nil {
		t.Fatalf("Failed to decode end payload: %v", err)
	}
	if end.TotalTicks != 42 || end.TotalTimeMs != 700 {
		t.Errorf("End payload %+v, want 42 ticks / 700ms", end)
	}
	if entries[2].Tick != 42 {
		t.Errorf("End entry tick %d, want 42", entries[2].Tick)
	}
}

// TestEventLogNoFile tests that a log without a file path still counts
// entries.
func TestEventLogNoFile(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("Failed to start fileless log: %v", err)
	}
	defer el.Stop()

	if !el.Emit(LogPin, 3, PinPayload{Index: 1, X: 10, Y: 20}) {
		t.Error("Emit should accept entries on a fileless log")
	}
	if el.GetTotalCount() != 1 {
		t.Errorf("Expected 1 accepted entry, got %d", el.GetTotalCount())
	}
}

// TestEventLogRateLimit tests the per-type cap under a burst.
func TestEventLogRateLimit(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("Failed to start event log: %v", err)
	}
	defer el.Stop()

	accepted := 0
	for i := 0; i < 100; i++ {
		if el.Emit(LogPin, 0, PinPayload{Index: i}) {
			accepted++
		}
	}

	// Burst capacity is a tenth of the per-second cap.
	if accepted == 100 {
		t.Error("A 100-entry burst should hit the rate limit")
	}
	if accepted == 0 {
		t.Error("The limiter should allow an initial burst")
	}
	if el.GetDroppedCount() == 0 {
		t.Error("Dropped counter should track limited entries")
	}
	if el.GetTotalCount() != uint64(accepted) {
		t.Errorf("Total %d does not match accepted %d", el.GetTotalCount(), accepted)
	}
}

// TestEventLogStats tests the monitoring counters.
func TestEventLogStats(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("Failed to start event log: %v", err)
	}

	el.Emit(LogInit, 0, InitPayload{NodeCount: 1})
	stats := el.GetStats()
	if stats["total"].(uint64) != 1 {
		t.Errorf("Expected total 1, got %v", stats["total"])
	}
	if !stats["running"].(bool) {
		t.Error("Stats should report running")
	}

	el.Stop()
	el.Stop() // idempotent
	if el.GetStats()["running"].(bool) {
		t.Error("Stats should report stopped after Stop")
	}
}
