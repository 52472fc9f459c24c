package rowstream

import (
	"context"
	"database/sql"
	"time"

	"github.com/queuebridge/sqlblocks/pkg/mssql"
)

// FromRows drives an open *sql.Rows through the push side of a new stream
// on its own goroutine. The result set is closed when scanning ends, and
// ctx cancellation aborts the scan with the context error.
func FromRows(ctx context.Context, rows *sql.Rows, cols []mssql.Column) *Stream {
	s := New()

	go func() {
		defer rows.Close()

		holders := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range holders {
			ptrs[i] = &holders[i]
		}

		for rows.Next() {
			if err := ctx.Err(); err != nil {
				s.Fail(err)
				return
			}
			if err := rows.Scan(ptrs...); err != nil {
				s.Fail(err)
				return
			}

			values := make(map[string]any, len(cols))
			size := 0
			for i, col := range cols {
				v := col.Decode(holders[i])
				values[col.Name] = v
				size += len(col.Name) + estimateValueSize(v) + 6
			}
			s.Push(Row{Values: values, Size: size + 2})
		}

		if err := rows.Err(); err != nil {
			s.Fail(err)
			return
		}
		s.Finish()
	}()

	return s
}

// estimateValueSize approximates the encoded JSON size of a decoded value.
// An estimate is enough: it only steers batch partitioning.
func estimateValueSize(v any) int {
	switch val := v.(type) {
	case nil:
		return 4
	case string:
		return len(val) + 2
	case bool:
		return 5
	case int64, int, int32, int16, int8:
		return 12
	case float64:
		return 16
	case time.Time:
		return 30
	default:
		return 16
	}
}
