package mssql

import (
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	mssqldb "github.com/denisenkom/go-mssqldb"
)

// Kind is the normalized type of a SQL Server column, used to shape result
// values into JSON-safe scalars.
type Kind string

const (
	KindInteger    Kind = "integer"
	KindDecimal    Kind = "decimal"
	KindReal       Kind = "real"
	KindText       Kind = "text"
	KindBoolean    Kind = "boolean"
	KindDate       Kind = "date"
	KindTime       Kind = "time"
	KindDateTime   Kind = "datetime"
	KindUUID       Kind = "uuid"
	KindBinary     Kind = "binary"
	KindRowversion Kind = "rowversion"
	KindXML        Kind = "xml"
)

// Type mapping for MS SQL Server 2012+
//
//	SQL Server Type    Kind          JSON value
//	──────────────────────────────────────────────
//	INT, BIGINT        integer       number
//	DECIMAL, MONEY     decimal       string (exact)
//	FLOAT, REAL        real          number
//	NVARCHAR, CHAR     text          string
//	BIT                boolean       bool
//	DATE               date          "2006-01-02"
//	DATETIME2 etc.     datetime      RFC 3339
//	UNIQUEIDENTIFIER   uuid          canonical string
//	VARBINARY, IMAGE   binary        base64 string
//	ROWVERSION         rowversion    hex string
//	XML                xml           string
func KindOf(sqlType string) Kind {
	base := sqlType
	if idx := strings.Index(base, "("); idx != -1 {
		base = base[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(base)) {
	case "TINYINT", "SMALLINT", "INT", "BIGINT":
		return KindInteger
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return KindDecimal
	case "FLOAT", "REAL":
		return KindReal
	case "BIT":
		return KindBoolean
	case "DATE":
		return KindDate
	case "TIME":
		return KindTime
	case "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		return KindDateTime
	case "UNIQUEIDENTIFIER":
		return KindUUID
	case "BINARY", "VARBINARY", "IMAGE":
		return KindBinary
	case "TIMESTAMP", "ROWVERSION":
		return KindRowversion
	case "XML":
		return KindXML
	default:
		// CHAR, NCHAR, VARCHAR, NVARCHAR, TEXT, NTEXT, SQL_VARIANT, unknown
		return KindText
	}
}

// Column describes one column of a result set or table.
type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"databaseType"`
	Kind         Kind   `json:"kind"`
	Nullable     bool   `json:"nullable"`
	Length       int64  `json:"length,omitempty"`    // -1 means MAX
	Precision    int64  `json:"precision,omitempty"`
	Scale        int64  `json:"scale,omitempty"`
}

// ColumnsFromRows reads column metadata from an open result set.
// Duplicate and empty column names are disambiguated so each column has a
// unique, non-empty JSON key.
func ColumnsFromRows(rows *sql.Rows) ([]Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	cols := make([]Column, len(types))
	for i, ct := range types {
		col := Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Kind:         KindOf(ct.DatabaseTypeName()),
		}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if length, ok := ct.Length(); ok {
			col.Length = length
		}
		if precision, scale, ok := ct.DecimalSize(); ok {
			col.Precision = precision
			col.Scale = scale
		}
		cols[i] = col
	}

	dedupeColumnNames(cols)
	return cols, nil
}

// dedupeColumnNames rewrites empty names to "column_N" and repeated names to
// "name_2", "name_3", keeping first occurrences untouched.
func dedupeColumnNames(cols []Column) {
	seen := make(map[string]int, len(cols))
	for i := range cols {
		name := cols[i].Name
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		base := name
		if n, dup := seen[base]; dup {
			// A generated suffix may itself collide with a later real
			// column, so keep counting until the name is unused.
			for {
				n++
				name = fmt.Sprintf("%s_%d", base, n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[name] = 1
		cols[i].Name = name
	}
}

// Decode converts a scanned driver value into a JSON-safe scalar according
// to the column kind. NULL stays nil.
func (c Column) Decode(v any) any {
	switch val := v.(type) {
	case nil:
		return nil

	case []byte:
		switch c.Kind {
		case KindUUID:
			var u mssqldb.UniqueIdentifier
			if err := u.Scan(val); err == nil {
				return strings.ToLower(u.String())
			}
			return base64.StdEncoding.EncodeToString(val)
		case KindBinary:
			return base64.StdEncoding.EncodeToString(val)
		case KindRowversion:
			return rowversionHex(val)
		default:
			// DECIMAL/MONEY arrive as text bytes; keep them exact
			return string(val)
		}

	case time.Time:
		switch c.Kind {
		case KindDate:
			return val.Format("2006-01-02")
		case KindTime:
			return val.Format("15:04:05.9999999")
		default:
			return val.Format(time.RFC3339Nano)
		}

	case bool, string, int64, float64:
		return val

	case int, int8, int16, int32:
		return val

	default:
		return fmt.Sprintf("%v", val)
	}
}

// rowversionHex converts an 8-byte rowversion counter to an uppercase hex
// string without leading zeros, matching SQL Server tooling output.
//
// Examples:
//   - []byte{0x00,0x00,0x00,0x00,0x18,0x7F,0x86,0x3C} → "187F863C"
//   - []byte{0x00,0x00,0x00,0x00,0x00,0x00,0x00,0x00} → "00"
func rowversionHex(data []byte) string {
	if len(data) != 8 {
		if len(data) == 0 {
			return ""
		}
		return "00"
	}

	value := binary.BigEndian.Uint64(data)
	if value == 0 {
		return "00"
	}

	const hexChars = "0123456789ABCDEF"
	var result [16]byte
	pos := 16
	for value > 0 {
		pos--
		result[pos] = hexChars[value&0x0F]
		value >>= 4
	}
	return string(result[pos:])
}

// ParseTableName splits a possibly schema-qualified table name.
// Examples:
//
//	"Users"        → ("dbo", "Users")
//	"sales.Orders" → ("sales", "Orders")
func ParseTableName(fullName, defaultSchema string) (schema, table string) {
	parts := strings.SplitN(strings.TrimSpace(fullName), ".", 2)
	if len(parts) == 2 {
		return strings.Trim(parts[0], "[]"), strings.Trim(parts[1], "[]")
	}
	if defaultSchema == "" {
		defaultSchema = "dbo"
	}
	return defaultSchema, strings.Trim(fullName, "[]")
}

// QuoteName wraps an identifier in brackets, escaping closing brackets.
func QuoteName(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QualifiedTable returns the bracket-quoted schema.table form.
func QualifiedTable(fullName, defaultSchema string) string {
	schema, table := ParseTableName(fullName, defaultSchema)
	return QuoteName(schema) + "." + QuoteName(table)
}
