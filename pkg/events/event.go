// Package events defines the envelope every block emits and the helpers
// for building, classifying and encoding event payloads.
package events

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what an event carries.
type Kind string

const (
	KindRows     Kind = "rows"     // full result set of a query block
	KindAffected Kind = "affected" // rows-affected count of a command block
	KindBulk     Kind = "bulk"     // bulk insert outcome
	KindBatch    Kind = "batch"    // one batch of a streaming query
	KindSummary  Kind = "summary"  // final streaming summary
	KindSchema   Kind = "schema"   // table/schema introspection result
	KindError    Kind = "error"    // terminal block failure
)

// Event is the envelope emitted for every block outcome.
type Event struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Block     string          `json:"block"`
	Run       string          `json:"run,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an envelope with a fresh ID and the payload marshaled to JSON.
func New(kind Kind, block, run string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Event{
		ID:        generateEventID(),
		Kind:      kind,
		Block:     block,
		Run:       run,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// generateEventID produces IDs like EVT-2026-a1b2c3d4.
func generateEventID() string {
	year := time.Now().UTC().Year()
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("EVT-%d-%d", year, time.Now().UnixNano())
	}
	return fmt.Sprintf("EVT-%d-%x", year, b)
}

// RowsPayload carries a complete (possibly truncated) result set.
type RowsPayload struct {
	Columns   []ColumnMeta     `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
	Elapsed   string           `json:"elapsed"`
}

// ColumnMeta describes one result column.
type ColumnMeta struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	Nullable bool   `json:"nullable"`
}

// AffectedPayload carries the outcome of a data-modifying statement.
// Affected is -1 when the server did not report a count.
type AffectedPayload struct {
	Affected int64  `json:"affected"`
	Elapsed  string `json:"elapsed"`
}

// BulkPayload carries the outcome of a bulk insert.
type BulkPayload struct {
	Table    string `json:"table"`
	Inserted int64  `json:"inserted"`
	Elapsed  string `json:"elapsed"`
}

// BatchPayload carries one ordered batch of a streaming query. Rows may be
// replaced by a zstd-compressed Data blob for large batches, see
// NewBatchPayload.
type BatchPayload struct {
	Seq        int              `json:"seq"`
	Rows       []map[string]any `json:"rows,omitempty"`
	Data       string           `json:"data,omitempty"`
	Compressed bool             `json:"compressed,omitempty"`
	Checksum   string           `json:"checksum,omitempty"`
	RowCount   int              `json:"row_count"`
}

// SummaryPayload closes a streaming run.
type SummaryPayload struct {
	Batches  int    `json:"batches"`
	RowCount int64  `json:"row_count"`
	Elapsed  string `json:"elapsed"`
}

// SchemaPayload carries introspection results; exactly one field set per mode.
type SchemaPayload struct {
	Mode    string   `json:"mode"`
	Tables  []string `json:"tables,omitempty"`
	Views   any      `json:"views,omitempty"`
	Columns any      `json:"columns,omitempty"`
	Exists  *bool    `json:"exists,omitempty"`
	Count   *int64   `json:"count,omitempty"`
}

// ErrorPayload carries a terminal block failure.
type ErrorPayload struct {
	Class   string `json:"class"`
	Message string `json:"message"`
	Number  int32  `json:"number,omitempty"` // SQL Server error number when known
}
