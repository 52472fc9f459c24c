// Package runlog publishes run summaries to Redis so an orchestrator can
// poll the last state or subscribe to completions.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the Redis connection and key settings.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Name labels this run in the Redis keys. Defaults to the run name
	// from the top-level config.
	Name string `yaml:"name"`

	// TTL of the state key in seconds; 0 keeps it forever.
	TTL int `yaml:"ttl"`
}

// RunResult is the state published after a run finishes, successfully or
// not.
//
// Redis keys:
//
//	SET  sqlblocks:run:<name>:state  <JSON>  EX <ttl>   (polling)
//	PUB  sqlblocks:run:<name>                           (subscriptions)
type RunResult struct {
	RunName    string    `json:"run_name"`
	Block      string    `json:"block"`
	Status     string    `json:"status"` // "success" | "failed"
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Events     int       `json:"events"`
	Error      *string   `json:"error,omitempty"`
}

// Publisher writes run results to Redis.
type Publisher struct {
	client *redis.Client
	config Config
}

// NewPublisher creates a publisher from config.
func NewPublisher(config Config) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &Publisher{client: client, config: config}
}

// Publish records one finished run:
//   - SET sqlblocks:run:<name>:state with TTL for polling
//   - PUBLISH sqlblocks:run:<name> for event-driven orchestration
//
// Called for both outcomes; execErr == nil means success.
func (p *Publisher) Publish(ctx context.Context, block string, started, finished time.Time, eventCount int, execErr error) error {
	result := RunResult{
		RunName:    p.config.Name,
		Block:      block,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
		Events:     eventCount,
	}
	if execErr != nil {
		result.Status = "failed"
		errStr := execErr.Error()
		result.Error = &errStr
	} else {
		result.Status = "success"
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	stateKey := fmt.Sprintf("sqlblocks:run:%s:state", p.config.Name)
	channel := fmt.Sprintf("sqlblocks:run:%s", p.config.Name)
	ttl := time.Duration(p.config.TTL) * time.Second

	if err := p.client.Set(ctx, stateKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
