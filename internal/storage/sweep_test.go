package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, dir, name string, age time.Duration, now time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(name), 0600); err != nil {
		t.Fatal(err)
	}
	mtime := now.Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRemoveOlderThan(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	old := writeAged(t, dir, "old.png", 3*time.Hour, now)
	fresh := writeAged(t, dir, "fresh.png", 10*time.Minute, now)
	sub := filepath.Join(dir, "workspace")
	if err := os.Mkdir(sub, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(sub, now.Add(-5*time.Hour), now.Add(-5*time.Hour)); err != nil {
		t.Fatal(err)
	}

	n, err := RemoveOlderThan(context.Background(), dir, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("RemoveOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if exists(old) {
		t.Error("old file was not removed")
	}
	if !exists(fresh) {
		t.Error("fresh file was removed")
	}
	if !exists(sub) {
		t.Error("subdirectory was removed")
	}
}

func TestRemoveOlderThan_MissingDir(t *testing.T) {
	n, err := RemoveOlderThan(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Now())
	if err != nil || n != 0 {
		t.Errorf("RemoveOlderThan() = %d, %v; want 0, nil", n, err)
	}
}

func TestSweeper_Sweep(t *testing.T) {
	uploads := t.TempDir()
	results := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	oldUpload := writeAged(t, uploads, "a.mp4", 3*time.Hour, now)
	newUpload := writeAged(t, uploads, "b.mp4", time.Hour, now)
	oldResult := writeAged(t, results, "a_styled.mp4", 49*time.Hour, now)
	newResult := writeAged(t, results, "b_styled.mp4", 30*time.Hour, now)

	s := NewSweeper(time.Hour, []SweepRule{
		{Dir: uploads, MaxAge: 2 * time.Hour},
		{Dir: results, MaxAge: 48 * time.Hour},
	},
		WithSweepLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }),
	)

	t.Run("configured rules", func(t *testing.T) {
		n, err := s.Sweep(context.Background())
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if n != 2 {
			t.Errorf("removed = %d, want 2", n)
		}
		if exists(oldUpload) || exists(oldResult) {
			t.Error("expired files survived")
		}
		if !exists(newUpload) || !exists(newResult) {
			t.Error("live files were removed")
		}
	})

	t.Run("explicit rules override", func(t *testing.T) {
		n, err := s.Sweep(context.Background(),
			SweepRule{Dir: uploads, MaxAge: 30 * time.Minute},
			SweepRule{Dir: results, MaxAge: 24 * time.Hour},
		)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if n != 2 {
			t.Errorf("removed = %d, want 2", n)
		}
		if exists(newUpload) || exists(newResult) {
			t.Error("files older than the manual limits survived")
		}
	})
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	s := NewSweeper(time.Millisecond, nil,
		WithSweepLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweeper_RunCallsPruner(t *testing.T) {
	calls := make(chan struct{}, 16)
	s := NewSweeper(time.Millisecond, nil,
		WithSweepLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPruner(func(context.Context) (int, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return 0, nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("pruner was not called after a sweep")
	}
}
