package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	mssqldb "github.com/denisenkom/go-mssqldb"
)

func TestNewEventEnvelope(t *testing.T) {
	ev, err := New(KindAffected, "command", "nightly", AffectedPayload{Affected: 3, Elapsed: "12ms"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasPrefix(ev.ID, "EVT-") {
		t.Errorf("unexpected ID format: %s", ev.ID)
	}
	if ev.Kind != KindAffected || ev.Block != "command" || ev.Run != "nightly" {
		t.Errorf("envelope fields wrong: %+v", ev)
	}

	var p AffectedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if p.Affected != 3 {
		t.Errorf("affected = %d, want 3", p.Affected)
	}
}

func TestRowsPayloadEmptyRowsMarshal(t *testing.T) {
	ev, err := New(KindRows, "query", "", RowsPayload{
		Columns: []ColumnMeta{{Name: "n", Type: "INT", Kind: "integer"}},
		Rows:    []map[string]any{},
		Elapsed: "1ms",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.Contains(string(ev.Payload), `"rows":[]`) {
		t.Errorf("payload = %s, want an empty rows array", ev.Payload)
	}
}

func TestEventIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := generateEventID()
		if seen[id] {
			t.Fatalf("duplicate event ID %s", id)
		}
		seen[id] = true
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"nil", nil, ""},
		{"canceled", context.Canceled, ClassCanceled},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ClassCanceled},
		{"config", &ConfigError{Err: errors.New("server is required")}, ClassConfig},
		{"wrapped config", fmt.Errorf("load: %w", &ConfigError{Err: errors.New("bad port")}), ClassConfig},
		{"sql", mssqldb.Error{Number: 208, Message: "Invalid object name"}, ClassSQL},
		{"login failed", mssqldb.Error{Number: 18456}, ClassConnection},
		{"plain", errors.New("boom"), ClassInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, _ := Classify(tt.err)
			if class != tt.class {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, class, tt.class)
			}
		})
	}
}

func TestClassifyReportsErrorNumber(t *testing.T) {
	_, number := Classify(mssqldb.Error{Number: 2627, Message: "Violation of PRIMARY KEY"})
	if number != 2627 {
		t.Errorf("number = %d, want 2627", number)
	}
}

func TestBatchPayloadInline(t *testing.T) {
	rows := []map[string]any{{"id": float64(1), "name": "alice"}}
	p, err := NewBatchPayload(1, rows)
	if err != nil {
		t.Fatalf("NewBatchPayload: %v", err)
	}
	if p.Compressed {
		t.Fatal("small batch should stay inline")
	}
	got, err := DecodeRows(p)
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if len(got) != 1 || got[0]["name"] != "alice" {
		t.Errorf("unexpected rows: %v", got)
	}
}

func TestBatchPayloadCompressedRoundTrip(t *testing.T) {
	filler := strings.Repeat("x", 256)
	var rows []map[string]any
	for i := 0; i < 500; i++ {
		rows = append(rows, map[string]any{"id": float64(i), "data": filler})
	}

	p, err := NewBatchPayload(7, rows)
	if err != nil {
		t.Fatalf("NewBatchPayload: %v", err)
	}
	if !p.Compressed {
		t.Fatal("large batch should be compressed")
	}
	if p.Rows != nil {
		t.Error("compressed batch must not carry inline rows")
	}
	if p.Checksum == "" {
		t.Error("compressed batch must carry a checksum")
	}

	got, err := DecodeRows(p)
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if len(got) != 500 {
		t.Fatalf("round trip lost rows: %d", len(got))
	}
	if got[499]["id"] != float64(499) {
		t.Errorf("row 499 wrong: %v", got[499])
	}
}

func TestDecodeRowsDetectsCorruption(t *testing.T) {
	filler := strings.Repeat("y", 512)
	var rows []map[string]any
	for i := 0; i < 300; i++ {
		rows = append(rows, map[string]any{"data": filler})
	}
	p, err := NewBatchPayload(1, rows)
	if err != nil {
		t.Fatalf("NewBatchPayload: %v", err)
	}
	p.Checksum = "0000000000000000"

	if _, err := DecodeRows(p); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}
