package blocks

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queuebridge/sqlblocks/pkg/events"
)

func init() {
	Register("command", func() Block { return &CommandBlock{} })
}

// CommandInput is the YAML input of the command block.
type CommandInput struct {
	Statement string         `yaml:"statement"`
	Params    map[string]any `yaml:"params"`
	Timeout   time.Duration  `yaml:"timeout"`
}

// CommandBlock executes a data-modifying statement (INSERT, UPDATE, DELETE,
// DDL, EXEC) and emits one affected event. The affected count is -1 when the
// server does not report one, e.g. after SET NOCOUNT ON or some procedures.
type CommandBlock struct{}

func (b *CommandBlock) Name() string { return "command" }

func (b *CommandBlock) Execute(ctx context.Context, rt *Runtime, input []byte) error {
	var in CommandInput
	if err := yaml.Unmarshal(input, &in); err != nil {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("parse command input: %w", err)})
	}
	if in.Statement == "" {
		return rt.Fault(ctx, b.Name(), &events.ConfigError{Err: fmt.Errorf("statement is required")})
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

	started := time.Now()
	res, err := db.ExecContext(execCtx, in.Statement, namedArgs(in.Params)...)
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}
	elapsed := time.Since(started)

	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}

	ev, err := events.New(events.KindAffected, b.Name(), rt.Run, events.AffectedPayload{
		Affected: affected,
		Elapsed:  elapsed.String(),
	})
	if err != nil {
		return rt.Fault(ctx, b.Name(), err)
	}

	rt.Log.Info().
		Int64("affected", affected).
		Dur("elapsed", elapsed).
		Msg("command block completed")
	return rt.Emit(ctx, ev)
}
