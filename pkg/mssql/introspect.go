package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TableColumn describes one column of a base table, as read from
// INFORMATION_SCHEMA plus COLUMNPROPERTY metadata.
type TableColumn struct {
	Name       string `json:"name"`
	DataType   string `json:"dataType"` // raw INFORMATION_SCHEMA type, e.g. "nvarchar"
	Kind       Kind   `json:"kind"`
	Length     int64  `json:"length,omitempty"` // -1 means MAX
	Precision  int64  `json:"precision,omitempty"`
	Scale      int64  `json:"scale,omitempty"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey"`
	Identity   bool   `json:"identity"`
	Computed   bool   `json:"computed"`

	// ReadOnly marks columns the server populates itself: rowversion,
	// computed and identity columns.
	ReadOnly bool `json:"readOnly"`
}

// ViewInfo describes a database view.
type ViewInfo struct {
	Name        string `json:"name"`
	IsUpdatable bool   `json:"isUpdatable"`
}

// TableNames returns all base table names in the given schema.
func TableNames(ctx context.Context, db *sql.DB, schema string) ([]string, error) {
	if schema == "" {
		schema = "dbo"
	}

	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		  AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	return tables, nil
}

// ViewNames returns all views in the given schema with updatable information.
func ViewNames(ctx context.Context, db *sql.DB, schema string) ([]ViewInfo, error) {
	if schema == "" {
		schema = "dbo"
	}

	query := `
		SELECT TABLE_NAME, IS_UPDATABLE
		FROM INFORMATION_SCHEMA.VIEWS
		WHERE TABLE_SCHEMA = @p1
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	var views []ViewInfo
	for rows.Next() {
		var name, updatable string
		if err := rows.Scan(&name, &updatable); err != nil {
			return nil, fmt.Errorf("failed to scan view info: %w", err)
		}
		views = append(views, ViewInfo{
			Name:        name,
			IsUpdatable: strings.EqualFold(updatable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating views: %w", err)
	}

	return views, nil
}

// TableExists reports whether a base table exists.
func TableExists(ctx context.Context, db *sql.DB, fullName, defaultSchema string) (bool, error) {
	schema, table := ParseTableName(fullName, defaultSchema)

	query := `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		  AND TABLE_NAME = @p2
		  AND TABLE_TYPE = 'BASE TABLE'
	`

	var count int
	if err := db.QueryRowContext(ctx, query, schema, table).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// TableColumns reads column metadata for a table.
// SQL Server 2012+ compatible query, detects read-only columns
// (rowversion, computed, identity).
func TableColumns(ctx context.Context, db *sql.DB, fullName, defaultSchema string) ([]TableColumn, error) {
	schema, table := ParseTableName(fullName, defaultSchema)

	query := `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.NUMERIC_PRECISION,
			c.NUMERIC_SCALE,
			c.IS_NULLABLE,
			CASE
				WHEN pk.COLUMN_NAME IS NOT NULL THEN 1
				ELSE 0
			END AS IS_PRIMARY_KEY,
			COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsComputed') AS IS_COMPUTED,
			COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity') AS IS_IDENTITY
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
				ON tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
				AND tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
				AND tc.TABLE_SCHEMA = ku.TABLE_SCHEMA
				AND tc.TABLE_NAME = ku.TABLE_NAME
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA
			AND c.TABLE_NAME = pk.TABLE_NAME
			AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query table columns: %w", err)
	}
	defer rows.Close()

	var cols []TableColumn
	for rows.Next() {
		var (
			name       string
			dataType   string
			length     sql.NullInt64
			precision  sql.NullInt64
			scale      sql.NullInt64
			isNullable string
			isPK       int
			isComputed sql.NullInt64
			isIdentity sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &length, &precision, &scale,
			&isNullable, &isPK, &isComputed, &isIdentity); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}

		col := TableColumn{
			Name:       name,
			DataType:   dataType,
			Kind:       KindOf(dataType),
			Nullable:   strings.EqualFold(isNullable, "YES"),
			PrimaryKey: isPK == 1,
			Identity:   isIdentity.Valid && isIdentity.Int64 == 1,
			Computed:   isComputed.Valid && isComputed.Int64 == 1,
		}
		if length.Valid {
			col.Length = length.Int64
		}
		if precision.Valid {
			col.Precision = precision.Int64
		}
		if scale.Valid {
			col.Scale = scale.Int64
		}

		isRowversion := strings.EqualFold(dataType, "timestamp") ||
			strings.EqualFold(dataType, "rowversion")
		col.ReadOnly = isRowversion || col.Computed || col.Identity

		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found or has no columns", schema, table)
	}
	return cols, nil
}

// RowCount returns a fast approximate row count from sys.partitions.
func RowCount(ctx context.Context, db *sql.DB, fullName, defaultSchema string) (int64, error) {
	schema, table := ParseTableName(fullName, defaultSchema)

	query := `
		SELECT SUM(p.rows)
		FROM sys.tables t
		INNER JOIN sys.schemas s ON t.schema_id = s.schema_id
		INNER JOIN sys.partitions p ON t.object_id = p.object_id
		WHERE s.name = @p1
			AND t.name = @p2
			AND p.index_id IN (0, 1)
	`

	var count sql.NullInt64
	if err := db.QueryRowContext(ctx, query, schema, table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get row count: %w", err)
	}
	if !count.Valid {
		return 0, nil
	}
	return count.Int64, nil
}

// ServerVersion returns the product version string reported by the server.
func ServerVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	err := db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	return version, nil
}
