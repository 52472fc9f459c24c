package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestPublishSuccess(t *testing.T) {
	srv := miniredis.RunT(t)

	pub := NewPublisher(Config{
		Enabled: true,
		Address: srv.Addr(),
		Name:    "nightly-export",
		TTL:     60,
	})
	defer pub.Close()

	started := time.Now().Add(-2 * time.Second)
	finished := time.Now()
	if err := pub.Publish(context.Background(), "stream", started, finished, 12, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw, err := srv.Get("sqlblocks:run:nightly-export:state")
	if err != nil {
		t.Fatalf("state key missing: %v", err)
	}
	var result RunResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("state is not valid JSON: %v", err)
	}
	if result.Status != "success" || result.Block != "stream" || result.Events != 12 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Error != nil {
		t.Errorf("success must not carry an error: %v", *result.Error)
	}
	if result.DurationMs < 1900 {
		t.Errorf("duration_ms = %d, want ~2000", result.DurationMs)
	}

	ttl := srv.TTL("sqlblocks:run:nightly-export:state")
	if ttl != 60*time.Second {
		t.Errorf("TTL = %v, want 60s", ttl)
	}
}

func TestPublishFailure(t *testing.T) {
	srv := miniredis.RunT(t)

	pub := NewPublisher(Config{Address: srv.Addr(), Name: "broken-run"})
	defer pub.Close()

	now := time.Now()
	execErr := errors.New("login failed for user")
	if err := pub.Publish(context.Background(), "query", now, now, 1, execErr); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw, err := srv.Get("sqlblocks:run:broken-run:state")
	if err != nil {
		t.Fatalf("state key missing: %v", err)
	}
	var result RunResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Status != "failed" {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.Error == nil || *result.Error != "login failed for user" {
		t.Errorf("error not recorded: %+v", result)
	}
}

func TestPublishUnreachableRedis(t *testing.T) {
	pub := NewPublisher(Config{Address: "127.0.0.1:1", Name: "x"})
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	if err := pub.Publish(ctx, "query", now, now, 0, nil); err == nil {
		t.Fatal("expected error for unreachable Redis")
	}
}
