package mssql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManagerRejectsInvalidConfig(t *testing.T) {
	m := NewManager(zerolog.Nop())
	defer m.Close()

	if _, err := m.Acquire(context.Background(), Config{}); err == nil {
		t.Fatal("expected validation error for empty config")
	}
	if _, ok := m.Current(); ok {
		t.Error("failed acquire must not leave a pool behind")
	}
}

func TestManagerCloseIdempotent(t *testing.T) {
	m := NewManager(zerolog.Nop())
	if err := m.Close(); err != nil {
		t.Errorf("close of empty manager: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

// TestManagerIntegration exercises the shared pool against a live server.
// Set SQLBLOCKS_TEST_DSN to run it.
func TestManagerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("SQLBLOCKS_TEST_DSN")
	if dsn == "" {
		t.Skip("SQLBLOCKS_TEST_DSN not set")
	}

	m := NewManager(zerolog.Nop())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := Config{DSN: dsn}
	db1, err := m.Acquire(ctx, cfg)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Same config reuses the same pool.
	db2, err := m.Acquire(ctx, cfg)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if db1 != db2 {
		t.Error("equal configs must share one pool")
	}

	// Changing a pool-shaping field swaps the pool.
	cfg2 := Config{DSN: dsn, MaxOpenConns: 9}
	db3, err := m.Acquire(ctx, cfg2)
	if err != nil {
		t.Fatalf("Acquire with new config: %v", err)
	}
	if db3 == db1 {
		t.Error("fingerprint change must open a new pool")
	}

	if err := m.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	version, err := ServerVersion(ctx, db3)
	if err != nil {
		t.Errorf("ServerVersion: %v", err)
	}
	if version == "" {
		t.Error("empty server version")
	}
}

// TestIntrospectIntegration covers the catalog helpers against tempdb.
func TestIntrospectIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("SQLBLOCKS_TEST_DSN")
	if dsn == "" {
		t.Skip("SQLBLOCKS_TEST_DSN not set")
	}

	m := NewManager(zerolog.Nop())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := m.Acquire(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	const table = "sqlblocks_introspect_test"
	db.ExecContext(ctx, "DROP TABLE IF EXISTS dbo."+table)
	_, err = db.ExecContext(ctx, `CREATE TABLE dbo.`+table+` (
		id INT IDENTITY PRIMARY KEY,
		name NVARCHAR(100) NOT NULL,
		payload VARBINARY(MAX) NULL,
		rv ROWVERSION
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	defer db.ExecContext(ctx, "DROP TABLE dbo."+table)

	exists, err := TableExists(ctx, db, table, "dbo")
	if err != nil || !exists {
		t.Fatalf("TableExists = %v, %v", exists, err)
	}

	cols, err := TableColumns(ctx, db, table, "dbo")
	if err != nil {
		t.Fatalf("TableColumns: %v", err)
	}
	if len(cols) != 4 {
		t.Fatalf("got %d columns, want 4", len(cols))
	}
	byName := map[string]TableColumn{}
	for _, c := range cols {
		byName[c.Name] = c
	}
	if !byName["id"].Identity || !byName["id"].PrimaryKey || !byName["id"].ReadOnly {
		t.Errorf("id flags wrong: %+v", byName["id"])
	}
	if byName["name"].Nullable {
		t.Error("name should be NOT NULL")
	}
	if byName["rv"].Kind != KindRowversion || !byName["rv"].ReadOnly {
		t.Errorf("rv flags wrong: %+v", byName["rv"])
	}

	count, err := RowCount(ctx, db, table, "dbo")
	if err != nil || count != 0 {
		t.Errorf("RowCount = %d, %v", count, err)
	}
}
