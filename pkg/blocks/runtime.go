package blocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuebridge/sqlblocks/pkg/emit"
	"github.com/queuebridge/sqlblocks/pkg/events"
	"github.com/queuebridge/sqlblocks/pkg/mssql"
)

// Runtime is the shared execution environment handed to every block: the
// pool manager, the connection config, the event sink and the logger.
type Runtime struct {
	Pool    *mssql.Manager
	Conn    mssql.Config
	Emitter emit.Emitter
	Log     zerolog.Logger

	// Run labels events with the run name from config, may be empty.
	Run string
}

// NewRuntime wires a runtime around a pool manager and an emitter.
func NewRuntime(pool *mssql.Manager, conn mssql.Config, emitter emit.Emitter, log zerolog.Logger) *Runtime {
	return &Runtime{Pool: pool, Conn: conn, Emitter: emitter, Log: log}
}

// DB returns the shared pool for the runtime's connection config, opening
// it on first use.
func (rt *Runtime) DB(ctx context.Context) (*sql.DB, error) {
	return rt.Pool.Acquire(ctx, rt.Conn)
}

// Emit delivers one event through the configured sink.
func (rt *Runtime) Emit(ctx context.Context, ev *events.Event) error {
	if err := rt.Emitter.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit %s event: %w", ev.Kind, err)
	}
	return nil
}

// Fault emits an error event for a failed block and returns the original
// error. Used by every block so a failure always leaves an event behind.
func (rt *Runtime) Fault(ctx context.Context, block string, err error) error {
	class, _ := events.Classify(err)
	rt.Log.Error().Err(err).Str("block", block).Str("class", string(class)).Msg("block failed")

	ev, evErr := events.NewErrorEvent(block, rt.Run, err)
	if evErr != nil {
		return err
	}
	// Best effort with a fresh context: the block's context may already be
	// canceled, which is exactly when the error event matters most.
	emitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if emitErr := rt.Emitter.Emit(emitCtx, ev); emitErr != nil {
		rt.Log.Error().Err(emitErr).Str("block", block).Msg("failed to emit error event")
	}
	return err
}

// namedArgs converts a params map to sql.Named arguments in stable order.
func namedArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, params[name]))
	}
	return args
}
