// Package scheduler repeats a job on ticks aligned to local midnight until cancelled.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Job is one scheduled run. An error is logged and the schedule continues.
type Job func(ctx context.Context) error

type Scheduler struct {
	interval time.Duration
	job      Job
	logger   *slog.Logger
	pidPath  string
}

// New returns a scheduler running job every interval. pidPath may be empty to skip the PID file.
func New(interval time.Duration, job Job, pidPath string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{interval: interval, job: job, logger: logger, pidPath: pidPath}
}

// Run runs the job once immediately, then on every tick, and returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.pidPath != "" {
		if err := writePID(s.pidPath); err != nil {
			return fmt.Errorf("writing PID file: %w", err)
		}
		defer os.Remove(s.pidPath)
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	s.runJob(ctx)

	for {
		next := NextTick(time.Now(), s.interval)
		s.logger.Info("next run scheduled", "at", next.Format(time.DateTime))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-time.After(time.Until(next)):
		}

		s.runJob(ctx)
	}
}

func (s *Scheduler) runJob(ctx context.Context) {
	started := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "elapsed", time.Since(started))
		return
	}
	s.logger.Debug("scheduled run finished", "elapsed", time.Since(started))
}

// NextTick returns the first instant after now that is a whole number of intervals past
// local midnight.
func NextTick(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		interval = time.Hour
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(midnight)
	return midnight.Add((elapsed/interval + 1) * interval)
}

func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// ReadPID returns the PID of the running scheduler.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running scheduler found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
