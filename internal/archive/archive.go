// Package archive periodically exports the board, every message with its
// display log, as JSONL to one or more destinations.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/metrics"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// runTimeout bounds one export including every upload.
const runTimeout = 5 * time.Minute

// Destination is an archive target (S3, local file).
type Destination interface {
	Name() string
	// Write replaces the archive at the destination with data.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs archive exports on a cron schedule.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	spec         string
	logger       zerolog.Logger

	c       *cron.Cron
	running atomic.Bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler validates spec (standard five-field cron or a descriptor
// such as "@every 10m") and returns an idle scheduler.
func NewScheduler(s store.Store, destinations []Destination, spec string, logger zerolog.Logger) (*Scheduler, error) {
	if len(destinations) == 0 {
		return nil, errors.New("archive: no destinations")
	}
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("archive schedule %q: %w", spec, err)
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		spec:         spec,
		logger:       logger.With().Str("component", "archive").Logger(),
	}, nil
}

// Start begins running exports on schedule.
func (s *Scheduler) Start() error {
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	if _, err := s.c.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("archive schedule %q: %w", s.spec, err)
	}
	s.c.Start()
	s.logger.Info().Str("schedule", s.spec).Int("destinations", len(s.destinations)).Msg("archive scheduled")
	return nil
}

// Stop halts the schedule and waits for a running export, or until ctx is
// done.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("previous archive still running, skipping")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	_ = s.RunOnce(ctx)
}

// RunOnce exports the board and writes it to every destination. A failing
// destination does not stop the others; the joined error reports them all.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		metrics.ArchiveRuns.WithLabelValues("export", "error").Inc()
		s.logger.Error().Err(err).Msg("archive export failed")
		return err
	}
	data := buf.Bytes()

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			metrics.ArchiveRuns.WithLabelValues(dest.Name(), "error").Inc()
			s.logger.Error().Err(err).Str("destination", dest.Name()).Msg("archive write failed")
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
		metrics.ArchiveRuns.WithLabelValues(dest.Name(), "ok").Inc()
	}

	s.logger.Info().
		Int("destinations", len(s.destinations)).
		Int("failed", len(errs)).
		Int("bytes", len(data)).
		Msg("archive completed")
	return errors.Join(errs...)
}
