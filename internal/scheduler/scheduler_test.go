package scheduler

import (
	"context"
	"errors"
	"testing"
)

func TestAddJobValidatesSpec(t *testing.T) {
	s := New()
	defer s.Stop()

	if err := s.AddJob("janitor", "@every 10m", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := s.AddJob("report", "0 21 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := s.AddJob("broken", "not a spec", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if err := s.AddJob("janitor", "@every 1h", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for duplicate name")
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
}

func TestRunNow(t *testing.T) {
	s := New()
	defer s.Stop()

	calls := 0
	boom := errors.New("boom")
	_ = s.AddJob("count", "@every 1h", func(ctx context.Context) error {
		if ctx == nil {
			t.Fatalf("nil context")
		}
		calls++
		return nil
	})
	_ = s.AddJob("fail", "@every 1h", func(context.Context) error { return boom })

	if err := s.RunNow("count"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
	if err := s.RunNow("fail"); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}

func TestStartStop(t *testing.T) {
	s := New()
	_ = s.AddJob("janitor", "@every 10m", func(context.Context) error { return nil })

	s.Start()
	if !s.IsRunning() {
		t.Fatalf("expected running")
	}
	if next := s.Entries()[0].Next; next.IsZero() {
		t.Fatalf("expected next activation after start")
	}
	s.Stop()
	if s.IsRunning() {
		t.Fatalf("expected stopped")
	}
}
