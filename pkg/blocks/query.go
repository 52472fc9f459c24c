package blocks

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queuebridge/sqlblocks/pkg/events"
	"github.com/queuebridge/sqlblocks/pkg/mssql"
)

func init() {
	Register("query", func() Block { return &QueryBlock{} })
}

// QueryInput is the YAML input of the query block.
type QueryInput struct {
	Query  string         `yaml:"query"`
	Params map[string]any `yaml:"params"`

	// MaxRows caps the result set; 0 means the default, -1 means unlimited.
	MaxRows int `yaml:"max_rows"`

	// Timeout overrides the connection's request timeout for this query.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultMaxRows bounds query block results so a runaway SELECT cannot
// balloon a single event. Streaming queries use the stream block instead.
const DefaultMaxRows = 10000

// QueryBlock runs a SELECT and emits one rows event with the full decoded
// result set and column metadata.
type QueryBlock struct{}

func (b *QueryBlock) Name() string { return "query" }

func (b *QueryBlock) Execute(ctx context.Context, rt *Runtime, input []byte) error {
	var in QueryInput
	if err := yaml.Unmarshal(input, &in); err != nil {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("parse query input: %w", err)})
	}
	if in.Query == "" {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("query is required")})
	}
	maxRows := in.MaxRows
	if maxRows == 0 {
		maxRows = DefaultMaxRows
	}

	db, err := rt.DB(ctx)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	timeout := in.Timeout
	if timeout == 0 {
		timeout = rt.Conn.RequestTimeout
	}
	queryCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	rows, err := db.QueryContext(queryCtx, in.Query, namedArgs(in.Params)...)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}
	defer rows.Close()

	cols, err := mssql.ColumnsFromRows(rows)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	// Non-nil so an empty result set marshals as "rows": [].
	result := []map[string]any{}
	var truncated bool
	holders := make([]any, len(cols))
	for i := range holders {
		holders[i] = new(any)
	}
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			truncated = true
			break
		}
		if err := rows.Scan(holders...); err != nil {
			return rt.Fault(ctx, b.Name(), fmt.Errorf("scan row %d: %w", len(result)+1, err))
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col.Name] = col.Decode(*(holders[i].(*any)))
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}
	elapsed := time.Since(started)

	meta := make([]events.ColumnMeta, len(cols))
	for i, col := range cols {
		meta[i] = events.ColumnMeta{
			Name:     col.Name,
			Type:     col.DatabaseType,
			Kind:     string(col.Kind),
			Nullable: col.Nullable,
		}
	}

	ev, err := events.New(events.KindRows, b.Name(), rt.Run, events.RowsPayload{
		Columns:   meta,
		Rows:      result,
		RowCount:  len(result),
		Truncated: truncated,
		Elapsed:   elapsed.String(),
	})
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	rt.Log.Info().
		Int("rows", len(result)).
		Bool("truncated", truncated).
		Dur("elapsed", elapsed).
		Msg("query block completed")
	return rt.Emit(ctx, ev)
}
