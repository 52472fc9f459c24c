package retry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempDLQ(t *testing.T, cfg DLQConfig) *DLQ {
	t.Helper()
	if cfg.FilePath == "" {
		cfg.FilePath = filepath.Join(t.TempDir(), "dlq.json")
	}
	dlq, err := NewDLQ(cfg)
	if err != nil {
		t.Fatalf("NewDLQ: %v", err)
	}
	return dlq
}

func TestDLQAddAndGet(t *testing.T) {
	dlq := tempDLQ(t, DLQConfig{Enabled: true, MaxSize: 10})

	dlq.Add(DLQEntry{
		Timestamp:   time.Now(),
		Attempts:    3,
		LastError:   "connection refused",
		FailureType: "max_attempts_exceeded",
		Data:        map[string]any{"id": "EVT-2026-cafe0001"},
	})

	entries := dlq.Get()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("entry should get an ID")
	}
	if got := dlq.GetByID(entries[0].ID); got == nil {
		t.Error("GetByID did not find the entry")
	}
	if dlq.GetByID("missing") != nil {
		t.Error("GetByID should return nil for unknown ID")
	}
}

func TestDLQMaxSizeTrimsOldest(t *testing.T) {
	dlq := tempDLQ(t, DLQConfig{Enabled: true, MaxSize: 3})

	for i := 0; i < 5; i++ {
		dlq.Add(DLQEntry{
			Timestamp:   time.Now(),
			LastError:   "err",
			FailureType: "max_attempts_exceeded",
			Data:        i,
		})
	}
	if dlq.Size() != 3 {
		t.Fatalf("size = %d, want 3", dlq.Size())
	}
	entries := dlq.Get()
	// json round trips numbers as float64 only after Load; in memory the
	// original int survives.
	if entries[0].Data != 2 {
		t.Errorf("oldest entries should be trimmed, got %v", entries[0].Data)
	}
}

func TestDLQRemoveAndClear(t *testing.T) {
	dlq := tempDLQ(t, DLQConfig{Enabled: true, MaxSize: 10})
	dlq.Add(DLQEntry{Timestamp: time.Now(), FailureType: "max_attempts_exceeded"})
	dlq.Add(DLQEntry{Timestamp: time.Now(), FailureType: "max_attempts_exceeded"})

	id := dlq.Get()[0].ID
	if !dlq.Remove(id) {
		t.Error("Remove returned false for existing entry")
	}
	if dlq.Remove(id) {
		t.Error("Remove returned true for already removed entry")
	}
	if dlq.Size() != 1 {
		t.Errorf("size = %d, want 1", dlq.Size())
	}

	if err := dlq.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if dlq.Size() != 0 {
		t.Errorf("size after clear = %d", dlq.Size())
	}
}

func TestDLQPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.json")
	cfg := DLQConfig{Enabled: true, FilePath: path, MaxSize: 10}

	dlq := tempDLQ(t, cfg)
	dlq.Add(DLQEntry{Timestamp: time.Now(), LastError: "boom", FailureType: "max_attempts_exceeded"})
	if err := dlq.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("DLQ file not written: %v", err)
	}

	reopened, err := NewDLQ(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Size() != 1 {
		t.Fatalf("reopened size = %d, want 1", reopened.Size())
	}
	if reopened.Get()[0].LastError != "boom" {
		t.Errorf("entry lost on reload: %+v", reopened.Get()[0])
	}
}

func TestDLQCleanupOld(t *testing.T) {
	dlq := tempDLQ(t, DLQConfig{
		Enabled:         true,
		MaxSize:         10,
		RetentionPeriod: time.Hour,
	})

	dlq.Add(DLQEntry{Timestamp: time.Now().Add(-2 * time.Hour), FailureType: "max_attempts_exceeded"})
	dlq.Add(DLQEntry{Timestamp: time.Now(), FailureType: "max_attempts_exceeded"})

	removed := dlq.CleanupOld()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if dlq.Size() != 1 {
		t.Errorf("size = %d, want 1", dlq.Size())
	}
}

func TestDLQStats(t *testing.T) {
	dlq := tempDLQ(t, DLQConfig{Enabled: true, MaxSize: 10})
	dlq.Add(DLQEntry{Timestamp: time.Now(), FailureType: "max_attempts_exceeded"})
	dlq.Add(DLQEntry{Timestamp: time.Now(), FailureType: "max_attempts_exceeded"})

	stats := dlq.GetStats()
	if stats.TotalEntries != 2 {
		t.Errorf("total = %d, want 2", stats.TotalEntries)
	}
	if stats.FailureTypes["max_attempts_exceeded"] != 2 {
		t.Errorf("unexpected failure types: %v", stats.FailureTypes)
	}
}
