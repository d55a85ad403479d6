package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/artstyle-api/internal/metrics"
)

// SweepRule removes regular files in Dir whose modification time is older
// than MaxAge.
type SweepRule struct {
	Dir    string
	MaxAge time.Duration
}

// Sweeper periodically deletes expired uploads and results.
type Sweeper struct {
	rules    []SweepRule
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	prune    func(ctx context.Context) (int, error)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the sweeper logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithPruner runs prune after every periodic sweep, to forget records of
// the files just removed.
func WithPruner(prune func(ctx context.Context) (int, error)) SweeperOption {
	return func(s *Sweeper) {
		s.prune = prune
	}
}

// NewSweeper creates a Sweeper applying rules every interval.
func NewSweeper(interval time.Duration, rules []SweepRule, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		rules:    rules,
		interval: interval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Warn("retention sweeper disabled", slog.Duration("interval", s.interval))
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
	}
	if s.prune == nil {
		return
	}
	if _, err := s.prune(ctx); err != nil {
		s.logger.Error("job prune failed", slog.String("error", err.Error()))
	}
}

// Sweep applies rules once, or the configured rules when none are given,
// and returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context, rules ...SweepRule) (int, error) {
	if len(rules) == 0 {
		rules = s.rules
	}

	var (
		total int
		errs  []error
	)
	now := s.now()
	for _, r := range rules {
		n, err := RemoveOlderThan(ctx, r.Dir, now.Add(-r.MaxAge))
		total += n
		if n > 0 {
			metrics.FilesSweptTotal.WithLabelValues(filepath.Base(r.Dir)).Add(float64(n))
			s.logger.Info("swept expired files",
				slog.String("dir", r.Dir),
				slog.Int("removed", n),
				slog.Duration("max_age", r.MaxAge),
			)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// RemoveOlderThan deletes regular files in dir last modified before cutoff.
// Subdirectories are left alone. A missing dir removes nothing.
func RemoveOlderThan(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read directory %s: %w", dir, err)
	}

	removed := 0
	var firstErr error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("context cancelled: %w", err)
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
