package emit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/queuebridge/sqlblocks/pkg/events"
)

// Stdout writes events as NDJSON, one envelope per line.
type Stdout struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStdout creates a stdout emitter.
func NewStdout() *Stdout {
	return &Stdout{w: bufio.NewWriter(os.Stdout)}
}

// NewWriterEmitter creates an NDJSON emitter over any writer. Used by tests
// and for piping events into files.
func NewWriterEmitter(w io.Writer) *Stdout {
	return &Stdout{w: bufio.NewWriter(w)}
}

func (s *Stdout) Connect(context.Context) error { return nil }
func (s *Stdout) Ping(context.Context) error    { return nil }
func (s *Stdout) Type() string                  { return "stdout" }

func (s *Stdout) Emit(_ context.Context, ev *events.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(raw); err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	// Flush per event so consumers see output promptly when piped.
	return s.w.Flush()
}

func (s *Stdout) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}
