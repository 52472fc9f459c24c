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
	Register("table", func() Block { return &TableBlock{} })
}

// TableInput is the YAML input of the table block.
type TableInput struct {
	// Mode: tables, views, columns, exists or count.
	Mode string `yaml:"mode"`

	// Table names the target for columns/exists/count, optionally
	// schema-qualified.
	Table string `yaml:"table"`

	// Schema overrides the connection's default schema for listing modes.
	Schema string `yaml:"schema"`

	Timeout time.Duration `yaml:"timeout"`
}

// TableBlock introspects the database catalog and emits one schema event.
type TableBlock struct{}

func (b *TableBlock) Name() string { return "table" }

func (b *TableBlock) Execute(ctx context.Context, rt *Runtime, input []byte) error {
	var in TableInput
	if err := yaml.Unmarshal(input, &in); err != nil {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("parse table input: %w", err)})
	}

	switch in.Mode {
	case "tables", "views", "columns", "exists", "count":
	default:
		return rt.Fault(ctx, b.Name(), &events.ConfigError{
			Err: fmt.Errorf("unknown mode %q (expected: tables, views, columns, exists, count)", in.Mode),
		})
	}
	needsTable := in.Mode == "columns" || in.Mode == "exists" || in.Mode == "count"
	if needsTable && in.Table == "" {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("table is required for mode %q", in.Mode)})
	}

	db, err := rt.DB(ctx)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	timeout := in.Timeout
	if timeout == 0 {
		timeout = rt.Conn.RequestTimeout
	}
	opCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	schema := in.Schema
	if schema == "" {
		schema = rt.Conn.Schema
	}

	payload := events.SchemaPayload{Mode: in.Mode}
	switch in.Mode {
	case "tables":
		names, err := mssql.TableNames(opCtx, db, schema)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		payload.Tables = names

	case "views":
		views, err := mssql.ViewNames(opCtx, db, schema)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		payload.Views = views

	case "columns":
		cols, err := mssql.TableColumns(opCtx, db, in.Table, schema)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		payload.Columns = cols

	case "exists":
		exists, err := mssql.TableExists(opCtx, db, in.Table, schema)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		payload.Exists = &exists

	case "count":
		count, err := mssql.RowCount(opCtx, db, in.Table, schema)
		if err != nil {
			return rt.Fault(ctx, b.Name(), err)
		}
		payload.Count = &count
	}

	ev, err := events.New(events.KindSchema, b.Name(), rt.Run, payload)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	rt.Log.Info().Str("mode", in.Mode).Str("schema", schema).Msg("table block completed")
	return rt.Emit(ctx, ev)
}
