package rowstream

import (
	"context"
)

// Default batch bounds. A batch closes when it reaches MaxRows rows or its
// estimated payload would exceed MaxBytes.
const (
	DefaultMaxRows  = 1000
	DefaultMaxBytes = 1 << 20 // ~1MB of row payload per batch

	// batchOverhead approximates the event envelope around the rows.
	batchOverhead = 512
)

// Batch is an ordered group of rows with a 1-based contiguous sequence
// number.
type Batch struct {
	Seq   int
	Rows  []map[string]any
	Bytes int
}

// Batcher pulls rows from a stream and groups them into size-bounded
// batches, preserving row order.
type Batcher struct {
	stream   *Stream
	maxRows  int
	maxBytes int

	seq     int
	pending *Row
	termErr error
	done    bool
}

// NewBatcher wraps a stream. Non-positive bounds fall back to defaults.
func NewBatcher(s *Stream, maxRows, maxBytes int) *Batcher {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Batcher{stream: s, maxRows: maxRows, maxBytes: maxBytes}
}

// Next returns the next full batch. At stream end a final partial batch is
// returned, then ErrDone. A stream error discards any partially collected
// batch and is returned immediately (and on every later call).
func (b *Batcher) Next(ctx context.Context) (*Batch, error) {
	if b.termErr != nil {
		return nil, b.termErr
	}
	if b.done {
		return nil, ErrDone
	}

	batch := &Batch{Seq: b.seq + 1}

	for {
		var row Row
		if b.pending != nil {
			row = *b.pending
			b.pending = nil
		} else {
			var err error
			row, err = b.stream.Next(ctx)
			if err == ErrDone {
				b.done = true
				if len(batch.Rows) > 0 {
					b.seq++
					return batch, nil
				}
				return nil, ErrDone
			}
			if err != nil {
				b.termErr = err
				return nil, err
			}
		}

		// A single oversized row still forms a batch of one.
		if len(batch.Rows) > 0 && batch.Bytes+row.Size+batchOverhead > b.maxBytes {
			b.pending = &row
			b.seq++
			return batch, nil
		}

		batch.Rows = append(batch.Rows, row.Values)
		batch.Bytes += row.Size

		if len(batch.Rows) >= b.maxRows {
			b.seq++
			return batch, nil
		}
	}
}
