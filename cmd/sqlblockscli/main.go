// Command sqlblockscli runs one SQL Server operation block from a YAML run
// config and a YAML block input, emitting events to the configured sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuebridge/sqlblocks/pkg/blocks"
	"github.com/queuebridge/sqlblocks/pkg/config"
	"github.com/queuebridge/sqlblocks/pkg/emit"
	"github.com/queuebridge/sqlblocks/pkg/events"
	"github.com/queuebridge/sqlblocks/pkg/mssql"
	"github.com/queuebridge/sqlblocks/pkg/retry"
	"github.com/queuebridge/sqlblocks/pkg/runlog"
)

const version = "1.0.0"

func main() {
	var (
		configPath   = flag.String("config", "", "Path to the YAML run config")
		blockName    = flag.String("block", "", "Block to execute (see -list)")
		inputPath    = flag.String("input", "", "Path to the YAML block input (- for stdin)")
		list         = flag.Bool("list", false, "List available blocks")
		showVersion  = flag.Bool("version", false, "Print version and exit")
		createConfig = flag.String("create-config", "", "Write a starter run config to the given path")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("sqlblockscli %s\n", version)
		return
	}
	if *list {
		fmt.Println("Available blocks:")
		for _, name := range blocks.Names() {
			fmt.Printf("  %s\n", name)
		}
		return
	}
	if *createConfig != "" {
		if err := config.CreateDefault(*createConfig); err != nil {
			fatal("Failed to create config: %v", err)
		}
		fmt.Printf("Created %s\n", *createConfig)
		return
	}

	if *configPath == "" {
		fatal("-config is required (use -create-config to generate one)")
	}
	if *blockName == "" {
		fatal("-block is required (use -list to see the options)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}

	log := newLogger(cfg.Logging)

	input, err := readInput(*inputPath)
	if err != nil {
		fatal("Failed to read block input: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *blockName, input); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.RunConfig, log zerolog.Logger, blockName string, input []byte) error {
	block, err := blocks.New(blockName)
	if err != nil {
		return err
	}

	emitter, err := emit.New(cfg.Emit)
	if err != nil {
		return fmt.Errorf("create emitter: %w", err)
	}
	if err := emitter.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s emitter: %w", emitter.Type(), err)
	}
	defer func() {
		if err := emitter.Close(); err != nil {
			log.Warn().Err(err).Msg("emitter close failed")
		}
	}()

	var retryer *retry.Retryer
	if cfg.Retry.Enabled {
		retryer, err = retry.New(cfg.Retry)
		if err != nil {
			return fmt.Errorf("create retryer: %w", err)
		}
		defer retryer.Close()
	}

	pool := mssql.NewManager(log)
	defer pool.Close()

	counting := &countingEmitter{inner: emit.WithRetry(emitter, retryer)}
	rt := blocks.NewRuntime(pool, cfg.Connection, counting, log)
	rt.Run = cfg.Name

	log.Info().
		Str("run", cfg.Name).
		Str("block", blockName).
		Str("emitter", emitter.Type()).
		Msg("starting block")

	started := time.Now()
	execErr := block.Execute(ctx, rt, input)
	finished := time.Now()

	if cfg.RunLog.Enabled {
		pub := runlog.NewPublisher(cfg.RunLog)
		defer pub.Close()

		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pub.Publish(pubCtx, blockName, started, finished, counting.count, execErr); err != nil {
			log.Warn().Err(err).Msg("run log publish failed")
		}
	}

	if execErr != nil {
		return execErr
	}
	log.Info().
		Int("events", counting.count).
		Dur("elapsed", finished.Sub(started)).
		Msg("block finished")
	return nil
}

func readInput(path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

// countingEmitter tracks delivered events for the run log.
type countingEmitter struct {
	inner emit.Emitter
	count int
}

func (c *countingEmitter) Connect(ctx context.Context) error { return c.inner.Connect(ctx) }
func (c *countingEmitter) Ping(ctx context.Context) error    { return c.inner.Ping(ctx) }
func (c *countingEmitter) Close() error                      { return c.inner.Close() }
func (c *countingEmitter) Type() string                      { return c.inner.Type() }

func (c *countingEmitter) Emit(ctx context.Context, ev *events.Event) error {
	if err := c.inner.Emit(ctx, ev); err != nil {
		return err
	}
	c.count++
	return nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	// Events go to stdout; logs stay on stderr so NDJSON output is clean.
	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func usage() {
	fmt.Fprintf(os.Stderr, `sqlblockscli %s - run SQL Server operation blocks

Usage:
  sqlblockscli -config run.yaml -block query -input query.yaml
  sqlblockscli -list
  sqlblockscli -create-config run.yaml

Flags:
`, version)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  # Print a starter config
  sqlblockscli -create-config run.yaml

  # Run a query block, input from file
  sqlblockscli -config run.yaml -block query -input examples/query.yaml

  # Stream a large table, input from stdin
  echo 'query: SELECT * FROM dbo.orders' | sqlblockscli -config run.yaml -block stream -input -
`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
