package blocks

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	mssqldb "github.com/denisenkom/go-mssqldb"
	"gopkg.in/yaml.v3"

	"github.com/queuebridge/sqlblocks/pkg/events"
	"github.com/queuebridge/sqlblocks/pkg/mssql"
)

func init() {
	Register("bulk_insert", func() Block { return &BulkInsertBlock{} })
}

// BulkInsertInput is the YAML input of the bulk_insert block.
type BulkInsertInput struct {
	Table string `yaml:"table"`

	// Columns limits the insert to these columns. When empty, all writable
	// columns of the target table that appear in the first row are used.
	Columns []string `yaml:"columns"`

	Rows []map[string]any `yaml:"rows"`

	// BCP hints.
	Tablock          bool `yaml:"tablock"`
	KeepNulls        bool `yaml:"keep_nulls"`
	FireTriggers     bool `yaml:"fire_triggers"`
	CheckConstraints bool `yaml:"check_constraints"`
	RowsPerBatch     int  `yaml:"rows_per_batch"`

	Timeout time.Duration `yaml:"timeout"`
}

// BulkInsertBlock loads rows through the TDS bulk copy protocol inside a
// single transaction. Either every row lands or none do.
type BulkInsertBlock struct{}

func (b *BulkInsertBlock) Name() string { return "bulk_insert" }

func (b *BulkInsertBlock) Execute(ctx context.Context, rt *Runtime, input []byte) error {
	var in BulkInsertInput
	if err := yaml.Unmarshal(input, &in); err != nil {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("parse bulk_insert input: %w", err)})
	}
	if in.Table == "" {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("table is required")})
	}
	if len(in.Rows) == 0 {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("rows must not be empty")})
	}

	db, err := rt.DB(ctx)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	timeout := in.Timeout
	if timeout == 0 {
		timeout = rt.Conn.RequestTimeout
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	schema, table := mssql.ParseTableName(in.Table, rt.Conn.Schema)
	tableCols, err := mssql.TableColumns(execCtx, db, in.Table, rt.Conn.Schema)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	cols, err := resolveBulkColumns(in.Columns, in.Rows[0], tableCols)
	if err != nil {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: err})
	}

	started := time.Now()
	inserted, err := copyRows(execCtx, db, schema, table, cols, in)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}
	elapsed := time.Since(started)

	qualified := fmt.Sprintf("%s.%s", schema, table)
	ev, err := events.New(events.KindBulk, b.Name(), rt.Run, events.BulkPayload{
		Table:    qualified,
		Inserted: inserted,
		Elapsed:  elapsed.String(),
	})
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	rt.Log.Info().
		Str("table", qualified).
		Int64("inserted", inserted).
		Dur("elapsed", elapsed).
		Msg("bulk_insert block completed")
	return rt.Emit(ctx, ev)
}

// resolveBulkColumns picks the target columns. Explicit columns are checked
// against the table; otherwise every writable table column present in the
// first row is used. Identity, computed and rowversion columns are rejected.
func resolveBulkColumns(requested []string, firstRow map[string]any, tableCols []mssql.TableColumn) ([]mssql.TableColumn, error) {
	byName := make(map[string]mssql.TableColumn, len(tableCols))
	for _, col := range tableCols {
		byName[col.Name] = col
	}

	if len(requested) > 0 {
		cols := make([]mssql.TableColumn, 0, len(requested))
		for _, name := range requested {
			col, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("column %q does not exist in target table", name)
			}
			if col.ReadOnly {
				return nil, fmt.Errorf("column %q is not writable (identity, computed or rowversion)", name)
			}
			cols = append(cols, col)
		}
		return cols, nil
	}

	var cols []mssql.TableColumn
	for _, col := range tableCols {
		if col.ReadOnly {
			continue
		}
		if _, ok := firstRow[col.Name]; ok {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no writable target columns match the row keys")
	}
	return cols, nil
}

// copyRows streams the rows over bulk copy inside one transaction.
func copyRows(ctx context.Context, db *sql.DB, schema, table string, cols []mssql.TableColumn, in BulkInsertInput) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk transaction: %w", err)
	}
	defer tx.Rollback()

	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	opts := mssqldb.BulkOptions{
		CheckConstraints: in.CheckConstraints,
		FireTriggers:     in.FireTriggers,
		KeepNulls:        in.KeepNulls,
		RowsPerBatch:     in.RowsPerBatch,
		Tablock:          in.Tablock,
	}

	target := mssql.QuoteName(schema) + "." + mssql.QuoteName(table)
	stmt, err := tx.PrepareContext(ctx, mssqldb.CopyIn(target, opts, names...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk copy: %w", err)
	}
	defer stmt.Close()

	values := make([]any, len(cols))
	for i, row := range in.Rows {
		for j, col := range cols {
			v, err := coerceValue(row[col.Name], col.Kind)
			if err != nil {
				return 0, fmt.Errorf("row %d, column %q: %w", i+1, col.Name, err)
			}
			values[j] = v
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, fmt.Errorf("bulk copy row %d: %w", i+1, err)
		}
	}

	// Final Exec with no args flushes the batch and reports the row count.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush bulk copy: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		inserted = int64(len(in.Rows))
	}

	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("close bulk copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk transaction: %w", err)
	}
	return inserted, nil
}

// coerceValue converts a YAML-decoded value to what the driver expects for
// the column kind.
func coerceValue(v any, kind mssql.Kind) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case mssql.KindDate, mssql.KindDateTime:
		return coerceTime(v, []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02",
		})
	case mssql.KindTime:
		return coerceTime(v, []string{
			"15:04:05.9999999",
			"15:04:05",
		})
	case mssql.KindUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string, got %T", v)
		}
		var id mssqldb.UniqueIdentifier
		if err := id.Scan(s); err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		return id, nil
	case mssql.KindBinary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			raw, err := base64.StdEncoding.DecodeString(x)
			if err != nil {
				return nil, fmt.Errorf("binary value is not valid base64: %w", err)
			}
			return raw, nil
		default:
			return nil, fmt.Errorf("expected base64 string for binary column, got %T", v)
		}
	case mssql.KindBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int:
			return x != 0, nil
		default:
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
	case mssql.KindInteger:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int64:
			return x, nil
		case uint64:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case string:
			n, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q: %w", x, err)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
	case mssql.KindDecimal, mssql.KindReal:
		switch x := v.(type) {
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q: %w", x, err)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}
	default:
		// text, xml and everything else goes through as its string form.
		switch x := v.(type) {
		case string:
			return x, nil
		default:
			return fmt.Sprintf("%v", x), nil
		}
	}
}

func coerceTime(v any, layouts []string) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range layouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unrecognized date/time value %q", x)
	default:
		return nil, fmt.Errorf("expected date/time string, got %T", v)
	}
}
