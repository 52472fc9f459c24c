// Package rowstream converts the driver's push-based row/error/done event
// model into an ordered pull sequence. The producer side (Push/Fail/Finish)
// never blocks: rows accumulate in an unbounded in-memory buffer, the
// consumer drains them with Next. There is deliberately no backpressure;
// bounding memory is the consumer's job (batch and emit promptly).
package rowstream

import (
	"context"
	"errors"
	"sync"
)

// ErrDone is returned by Next after the stream completed and the buffer
// drained.
var ErrDone = errors.New("rowstream: stream finished")

// Row is one decoded result row plus its estimated encoded size in bytes.
// The size is used by the batcher to bound batch payloads.
type Row struct {
	Values map[string]any
	Size   int
}

// Stream is a single-producer, single-consumer ordered row buffer.
type Stream struct {
	mu     sync.Mutex
	buf    []Row
	err    error
	done   bool
	notify chan struct{}
}

// New creates an empty open stream.
func New() *Stream {
	return &Stream{notify: make(chan struct{}, 1)}
}

// Push appends a row. Never blocks. Rows pushed after Fail or Finish are
// dropped.
func (s *Stream) Push(row Row) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, row)
	s.mu.Unlock()
	s.signal()
}

// Fail terminates the stream with err. The consumer observes err only after
// draining all rows pushed before the failure. First terminal event wins.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

// Finish terminates the stream successfully. First terminal event wins.
func (s *Stream) Finish() {
	s.mu.Lock()
	if !s.done {
		s.done = true
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next row in push order. After the buffer drains it
// returns the terminal error, or ErrDone for a finished stream. Blocks
// until a row or terminal event arrives, honoring ctx.
func (s *Stream) Next(ctx context.Context) (Row, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			row := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return row, nil
		}
		if s.done {
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return Row{}, err
			}
			return Row{}, ErrDone
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Row{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Buffered reports how many rows are waiting to be pulled.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
