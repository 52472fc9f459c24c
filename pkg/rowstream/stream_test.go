package rowstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStreamPushThenDrain(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		s.Push(Row{Values: map[string]any{"n": int64(i)}, Size: 8})
	}
	s.Finish()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		row, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if got := row.Values["n"].(int64); got != int64(i) {
			t.Errorf("row %d: got n=%d", i, got)
		}
	}
	if _, err := s.Next(ctx); err != ErrDone {
		t.Fatalf("expected ErrDone, got %v", err)
	}
	// Next after ErrDone stays ErrDone.
	if _, err := s.Next(ctx); err != ErrDone {
		t.Fatalf("expected ErrDone again, got %v", err)
	}
}

func TestStreamErrorObservedAfterDrain(t *testing.T) {
	s := New()
	s.Push(Row{Values: map[string]any{"a": "x"}, Size: 4})
	want := errors.New("scan failed")
	s.Fail(want)

	ctx := context.Background()
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("buffered row should drain before error: %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestStreamFirstTerminalWins(t *testing.T) {
	s := New()
	want := errors.New("boom")
	s.Fail(want)
	s.Finish()
	s.Fail(errors.New("later"))
	s.Push(Row{Values: map[string]any{}, Size: 0}) // dropped

	if _, err := s.Next(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected first error %v, got %v", want, err)
	}
	if s.Buffered() != 0 {
		t.Errorf("push after terminal should be dropped, buffered=%d", s.Buffered())
	}
}

func TestStreamNextBlocksUntilPush(t *testing.T) {
	s := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Push(Row{Values: map[string]any{"k": "v"}, Size: 3})
		s.Finish()
	}()

	row, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row.Values["k"] != "v" {
		t.Errorf("unexpected row: %v", row.Values)
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStreamZeroRows(t *testing.T) {
	s := New()
	s.Finish()
	if _, err := s.Next(context.Background()); err != ErrDone {
		t.Fatalf("expected ErrDone on empty finished stream, got %v", err)
	}
}
