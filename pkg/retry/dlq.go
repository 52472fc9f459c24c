package retry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// DLQEntry is one undeliverable event with its failure history.
type DLQEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	FailureType string    `json:"failure_type"`
	Data        any       `json:"data,omitempty"`
}

// DLQ is a file-backed dead letter queue. Every mutation is persisted, so a
// crash loses at most the entry being written.
type DLQ struct {
	mu      sync.RWMutex
	config  DLQConfig
	entries []DLQEntry
	counter int
}

// NewDLQ opens the queue, loading existing entries from disk.
func NewDLQ(config DLQConfig) (*DLQ, error) {
	dlq := &DLQ{
		config:  config,
		entries: make([]DLQEntry, 0),
	}
	if _, err := os.Stat(config.FilePath); err == nil {
		if err := dlq.Load(); err != nil {
			return nil, fmt.Errorf("failed to load DLQ: %w", err)
		}
	}
	return dlq, nil
}

// Add appends an entry, trimming the oldest past MaxSize.
func (d *DLQ) Add(entry DLQEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counter++
	entry.ID = fmt.Sprintf("dlq-%d-%d", time.Now().Unix(), d.counter)
	d.entries = append(d.entries, entry)

	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}
	d.saveLocked()
}

// Get returns a copy of all entries.
func (d *DLQ) Get() []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]DLQEntry, len(d.entries))
	copy(result, d.entries)
	return result
}

// GetByID returns one entry or nil.
func (d *DLQ) GetByID(id string) *DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.entries {
		if d.entries[i].ID == id {
			entry := d.entries[i]
			return &entry
		}
	}
	return nil
}

// Remove deletes an entry by ID.
func (d *DLQ) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, entry := range d.entries {
		if entry.ID == id {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			d.saveLocked()
			return true
		}
	}
	return false
}

// Clear drops all entries.
func (d *DLQ) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make([]DLQEntry, 0)
	return d.saveLocked()
}

// CleanupOld removes entries older than the retention period, returning how
// many were dropped.
func (d *DLQ) CleanupOld() int {
	if d.config.RetentionPeriod == 0 {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-d.config.RetentionPeriod)
	kept := make([]DLQEntry, 0, len(d.entries))
	removed := 0
	for _, entry := range d.entries {
		if entry.Timestamp.After(cutoff) {
			kept = append(kept, entry)
		} else {
			removed++
		}
	}
	if removed > 0 {
		d.entries = kept
		d.saveLocked()
	}
	return removed
}

// Size returns the number of queued entries.
func (d *DLQ) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Save persists the queue to disk.
func (d *DLQ) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked()
}

func (d *DLQ) saveLocked() error {
	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ: %w", err)
	}
	if err := os.WriteFile(d.config.FilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write DLQ file: %w", err)
	}
	return nil
}

// Load reads the queue from disk, replacing in-memory entries.
func (d *DLQ) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read DLQ file: %w", err)
	}
	var entries []DLQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal DLQ: %w", err)
	}
	d.entries = entries
	return nil
}

// Stats summarizes queue contents by failure type.
type Stats struct {
	TotalEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
	FailureTypes map[string]int
}

// GetStats returns queue statistics.
func (d *DLQ) GetStats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := Stats{
		TotalEntries: len(d.entries),
		FailureTypes: make(map[string]int),
	}
	if len(d.entries) == 0 {
		return stats
	}
	stats.OldestEntry = d.entries[0].Timestamp
	stats.NewestEntry = d.entries[len(d.entries)-1].Timestamp
	for _, entry := range d.entries {
		stats.FailureTypes[entry.FailureType]++
	}
	return stats
}
