package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/rs/zerolog"
)

// driverName is the registered database/sql driver.
// The "sqlserver" variant binds parameters as @p1..@pN and sql.Named.
const driverName = "sqlserver"

// Manager owns a single shared connection pool keyed by the fingerprint of
// its connection config. Acquire with an unchanged config returns the
// existing pool; a changed config closes the old pool and builds a new one.
// Concurrent initialization attempts are serialized: exactly one
// open+ping happens per config change, everyone else observes the result.
type Manager struct {
	mu  sync.Mutex
	db  *sql.DB
	fp  string
	cfg Config
	log zerolog.Logger
}

// NewManager creates an empty pool manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Acquire returns the shared pool for cfg, creating or replacing it as
// needed. The returned *sql.DB stays owned by the manager; callers must not
// close it.
func (m *Manager) Acquire(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	cfg.SetDefaults()
	fp := cfg.Fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil && m.fp == fp {
		return m.db, nil
	}

	if m.db != nil {
		m.log.Info().
			Str("old_fingerprint", m.fp).
			Str("new_fingerprint", fp).
			Msg("connection config changed, replacing pool")
		if err := m.db.Close(); err != nil {
			m.log.Warn().Err(err).Msg("failed to close previous pool")
		}
		m.db = nil
		m.fp = ""
	}

	db, err := sql.Open(driverName, cfg.BuildDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m.db = db
	m.fp = fp
	m.cfg = cfg
	m.log.Info().
		Str("fingerprint", fp).
		Str("server", cfg.Server).
		Str("database", cfg.Database).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("connection pool ready")

	return m.db, nil
}

// Current reports the fingerprint of the live pool, if any.
func (m *Manager) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fp, m.db != nil
}

// Config returns the config of the live pool. Zero value when empty.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Ping verifies the live pool is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	db := m.db
	m.mu.Unlock()

	if db == nil {
		return fmt.Errorf("no connection pool")
	}
	return db.PingContext(ctx)
}

// Close tears down the pool. Safe to call on an empty manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.fp = ""
	m.log.Info().Msg("connection pool closed")
	return err
}
