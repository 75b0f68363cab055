// Package sync pushes dataset samples to shared storage so other machines can
// run against the same fixtures.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/sgcache/internal/dataset"
)

// Destination is the interface for a push target (S3, git, etc.).
type Destination interface {
	// Write stores every file at its key.
	Write(ctx context.Context, files []File) error
	// String names the destination in logs.
	String() string
}

// Push collects d once and writes it to every destination. Failing
// destinations do not stop the others; their errors are joined.
func Push(ctx context.Context, d *dataset.Dataset, destinations []Destination, logger *slog.Logger) error {
	files, err := Collect(d)
	if err != nil {
		return err
	}
	size := 0
	for _, f := range files {
		size += len(f.Data)
	}

	var errs []error
	for _, dest := range destinations {
		start := time.Now()
		if err := dest.Write(ctx, files); err != nil {
			logger.Error("push failed", "sample", d.Name(), "destination", dest.String(), "err", err)
			errs = append(errs, fmt.Errorf("push to %s: %w", dest, err))
			continue
		}
		logger.Info("pushed dataset", "sample", d.Name(), "destination", dest.String(), "files", len(files), "bytes", size, "elapsed", time.Since(start))
	}
	return errors.Join(errs...)
}

// Scheduler pushes a sample to one or more destinations periodically.
type Scheduler struct {
	dataset      *dataset.Dataset
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that pushes d to the given destinations
// at the specified interval.
func NewScheduler(d *dataset.Dataset, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		dataset:      d,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic pushes. It pushes once immediately, then on each
// tick, until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current push (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.pushOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushOnce(ctx)
		}
	}
}

func (s *Scheduler) pushOnce(ctx context.Context) {
	if err := Push(ctx, s.dataset, s.destinations, s.logger); err != nil {
		s.logger.Error("scheduled push failed", "sample", s.dataset.Name(), "err", err)
	}
}
