package blocks

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queuebridge/sqlblocks/pkg/events"
	"github.com/queuebridge/sqlblocks/pkg/mssql"
	"github.com/queuebridge/sqlblocks/pkg/rowstream"
)

func init() {
	Register("stream", func() Block { return &StreamBlock{} })
}

// StreamInput is the YAML input of the stream block.
type StreamInput struct {
	Query  string         `yaml:"query"`
	Params map[string]any `yaml:"params"`

	// Batch bounds; zero values use the rowstream defaults.
	BatchRows  int `yaml:"batch_rows"`
	BatchBytes int `yaml:"batch_bytes"`

	// Timeout bounds the whole stream. Zero means no deadline: streaming
	// runs are expected to be long.
	Timeout time.Duration `yaml:"timeout"`
}

// StreamBlock runs a query and emits its result as ordered batch events
// followed by one summary event. Rows flow through the stream adapter, so
// scanning is decoupled from event delivery.
type StreamBlock struct{}

func (b *StreamBlock) Name() string { return "stream" }

func (b *StreamBlock) Execute(ctx context.Context, rt *Runtime, input []byte) error {
	var in StreamInput
	if err := yaml.Unmarshal(input, &in); err != nil {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("parse stream input: %w", err)})
	}
	if in.Query == "" {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("query is required")})
	}

	db, err := rt.DB(ctx)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	streamCtx := ctx
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	started := time.Now()
	rows, err := db.QueryContext(streamCtx, in.Query, namedArgs(in.Params)...)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	cols, err := mssql.ColumnsFromRows(rows)
	if err != nil {
		rows.Close()
		return rt.Fault(ctx, b.Name(), err)
	}

	stream := rowstream.FromRows(streamCtx, rows, cols)
	batcher := rowstream.NewBatcher(stream, in.BatchRows, in.BatchBytes)

	var (
		batches  int
		rowCount int64
	)
	for {
		batch, err := batcher.Next(streamCtx)
		if err == rowstream.ErrDone {
			break
		}
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}

		payload, err := events.NewBatchPayload(batch.Seq, batch.Rows)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		ev, err := events.New(events.KindBatch, b.Name(), rt.Run, payload)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		if err := rt.Emit(streamCtx, ev); err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}

		batches++
		rowCount += int64(len(batch.Rows))
		rt.Log.Debug().
			Int("seq", batch.Seq).
			Int("rows", len(batch.Rows)).
			Int("bytes", batch.Bytes).
			Msg("batch emitted")
	}
	elapsed := time.Since(started)

	ev, err := events.New(events.KindSummary, b.Name(), rt.Run, events.SummaryPayload{
		Batches:  batches,
		RowCount: rowCount,
		Elapsed:  elapsed.String(),
	})
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	rt.Log.Info().
		Int("batches", batches).
		Int64("rows", rowCount).
		Dur("elapsed", elapsed).
		Msg("stream block completed")
	return rt.Emit(ctx, ev)
}
