// Package scheduler runs the message lifecycle: it expires messages whose
// display window has passed and promotes queued messages into the free
// display slots, announcing every change on the event bus.
//
// Any number of schedulers may run against one store. They coordinate only
// through the store's conditional transitions: whichever instance applies a
// transition first announces it, and the others see a conflict and move on.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/events"
	"github.com/alfredjeanlab/shoutboard/internal/metrics"
	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

const (
	// expireBatch caps how many due messages one sweep reads.
	expireBatch = 500
	// promotePasses bounds how often a sweep refetches candidates after
	// losing races to other instances.
	promotePasses = 3
)

// Config controls the lifecycle.
type Config struct {
	MaxActive       int
	DisplayDuration time.Duration
	Interval        time.Duration
	Resurface       ResurfacePolicy
	Placeholders    []string
	Instance        string
	CycleTimeout    time.Duration
}

// DefaultConfig returns the stock lifecycle settings.
func DefaultConfig() Config {
	return Config{
		MaxActive:       10,
		DisplayDuration: 60 * time.Second,
		Interval:        2 * time.Second,
		Resurface:       ResurfaceRandom,
		Placeholders:    DefaultPlaceholders,
		CycleTimeout:    30 * time.Second,
	}
}

// Result counts what one reconcile cycle did.
type Result struct {
	Expired    int
	Activated  int
	Resurfaced int
	Seeded     int
	Conflicts  int
	Errors     int
}

func (r Result) changed() bool {
	return r.Expired+r.Activated+r.Resurfaced+r.Seeded > 0
}

// Scheduler reconciles the board on a fixed interval.
type Scheduler struct {
	store     store.Store
	publisher events.Publisher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
	nudge     chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Zero fields in cfg take their defaults; a nil
// publisher discards announcements.
func New(s store.Store, p events.Publisher, cfg Config, logger zerolog.Logger) *Scheduler {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	def := DefaultConfig()
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = def.MaxActive
	}
	if cfg.DisplayDuration <= 0 {
		cfg.DisplayDuration = def.DisplayDuration
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Resurface == "" {
		cfg.Resurface = def.Resurface
	}
	if cfg.Placeholders == nil {
		cfg.Placeholders = def.Placeholders
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = def.CycleTimeout
	}
	return &Scheduler{
		store:     s,
		publisher: p,
		cfg:       cfg,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
		nudge:     make(chan struct{}, 1),
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start begins reconciling. It runs a cycle immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	s.logger.Info().
		Int("max_active", s.cfg.MaxActive).
		Dur("display_duration", s.cfg.DisplayDuration).
		Dur("interval", s.cfg.Interval).
		Str("resurface", string(s.cfg.Resurface)).
		Msg("scheduler started")
}

// Stop cancels the loop and waits for the current cycle to finish. A store
// operation already in flight completes; no further messages are processed.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Nudge asks the running loop for an extra cycle without waiting for the
// next tick. It never blocks; nudges that arrive while one is pending are
// merged.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	s.cycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.nudge:
			s.cycle(ctx)
		}
	}
}

// cycle runs one reconcile with store calls detached from stop, so that
// cancellation never interrupts a write halfway.
func (s *Scheduler) cycle(stop context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(stop), s.cfg.CycleTimeout)
	defer cancel()
	s.reconcile(ctx, stop)
}

// Reconcile runs one expire-then-promote cycle and reports what it did.
// Failures are logged and counted; they never abort the cycle.
func (s *Scheduler) Reconcile(ctx context.Context) Result {
	return s.reconcile(ctx, ctx)
}

func (s *Scheduler) reconcile(ctx, stop context.Context) Result {
	start := time.Now()
	var res Result

	justExpired := s.expire(ctx, stop, s.clock(), &res)
	if stop.Err() == nil {
		s.promote(ctx, stop, s.clock(), justExpired, &res)
	}

	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	ev := s.logger.Debug()
	if res.changed() || res.Errors > 0 {
		ev = s.logger.Info()
	}
	ev.Int("expired", res.Expired).
		Int("activated", res.Activated).
		Int("resurfaced", res.Resurfaced).
		Int("seeded", res.Seeded).
		Int("conflicts", res.Conflicts).
		Int("errors", res.Errors).
		Dur("took", time.Since(start)).
		Msg("reconcile")
	return res
}

// clock returns now at the precision every store keeps.
func (s *Scheduler) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// expire retires every displaying message whose window has passed and
// returns the ids it expired.
func (s *Scheduler) expire(ctx, stop context.Context, now time.Time, res *Result) map[string]bool {
	due, err := s.store.ListDue(ctx, now, expireBatch)
	if err != nil {
		s.storeError(res, "list_due", "", err)
		return nil
	}

	expired := make(map[string]bool, len(due))
	for _, m := range due {
		if stop.Err() != nil {
			break
		}
		got, err := s.store.Transition(ctx, model.Expire(m.ID, now))
		if s.skip(res, "expire", m.ID, err) {
			continue
		}
		expired[got.ID] = true
		res.Expired++
		s.announce(ctx, got, model.EventExpired, now, events.TopicMessageExpired, events.NewMessageExpired(got))
	}
	return expired
}

// promote fills free display slots from the queue, oldest first, then hands
// any slots still free to the resurfacing policy.
//
// The live count is re-read before every transition and the sweep stops once
// the board is full. An instance can therefore overshoot MaxActive by at most
// the one transition whose count read raced with another instance.
func (s *Scheduler) promote(ctx, stop context.Context, now time.Time, justExpired map[string]bool, res *Result) {
	free, ok := s.freeSlots(ctx, res)
	if !ok || free <= 0 {
		return
	}

	tried := make(map[string]bool)
	for pass := 0; pass < promotePasses && stop.Err() == nil; pass++ {
		batch, err := s.store.FindOldest(ctx, model.StatusQueued, free+len(tried))
		if err != nil {
			s.storeError(res, "find_queued", "", err)
			return
		}
		fresh := 0
		for _, m := range batch {
			if stop.Err() != nil {
				return
			}
			if tried[m.ID] {
				continue
			}
			if free, ok = s.freeSlots(ctx, res); !ok || free <= 0 {
				return
			}
			tried[m.ID] = true
			fresh++
			got, err := s.store.Transition(ctx, model.Activate(m.ID, now, s.cfg.DisplayDuration))
			if s.skip(res, "activate", m.ID, err) {
				continue
			}
			res.Activated++
			s.announce(ctx, got, model.EventActivated, now, events.TopicMessageActivated, events.NewMessageActivated(got))
		}
		if fresh == 0 {
			break
		}
	}

	if stop.Err() != nil {
		return
	}
	if free, ok = s.freeSlots(ctx, res); ok && free > 0 {
		s.resurface(ctx, stop, now, free, justExpired, res)
	}
}

// freeSlots reads the live active count and returns how many display slots
// are open. It reports false when the store could not be read.
func (s *Scheduler) freeSlots(ctx context.Context, res *Result) (int, bool) {
	active, err := s.store.CountByStatus(ctx, model.StatusDisplaying)
	if err != nil {
		s.storeError(res, "count_active", "", err)
		return 0, false
	}
	metrics.ActiveMessages.Set(float64(active))
	return s.cfg.MaxActive - active, true
}

// resurface applies the resurfacing policy to free slots, re-checking the
// live count before each transition.
func (s *Scheduler) resurface(ctx, stop context.Context, now time.Time, free int, justExpired map[string]bool, res *Result) {
	switch s.cfg.Resurface {
	case ResurfaceOff:
		return
	case ResurfacePlaceholder:
		s.seedPlaceholders(ctx, now, res)
	}

	sample, err := s.store.SampleByStatus(ctx, model.StatusExpired, free+len(justExpired))
	if err != nil {
		s.storeError(res, "sample_expired", "", err)
		return
	}
	for _, m := range sample {
		if stop.Err() != nil {
			return
		}
		if justExpired[m.ID] {
			continue
		}
		if open, ok := s.freeSlots(ctx, res); !ok || open <= 0 {
			return
		}
		got, err := s.store.Transition(ctx, model.Resurface(m.ID, now, s.cfg.DisplayDuration))
		if s.skip(res, "resurface", m.ID, err) {
			continue
		}
		res.Resurfaced++
		s.announce(ctx, got, model.EventResurfaced, now, events.TopicMessageActivated, events.NewMessageActivated(got))
	}
}

// seedPlaceholders inserts the placeholder messages into an empty board.
// Seeds are insert-if-absent, so concurrent instances create each once.
func (s *Scheduler) seedPlaceholders(ctx context.Context, now time.Time, res *Result) {
	total, err := s.store.CountByStatus(ctx, "")
	if err != nil {
		s.storeError(res, "count_all", "", err)
		return
	}
	if total > 0 {
		return
	}
	for i, body := range s.cfg.Placeholders {
		m := &model.Message{
			ID:        placeholderID(i),
			Body:      body,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}
		inserted, err := s.store.SeedMessage(ctx, m)
		if err != nil {
			s.storeError(res, "seed", m.ID, err)
			continue
		}
		if inserted {
			res.Seeded++
		}
	}
	if res.Seeded > 0 {
		s.logger.Info().Int("count", res.Seeded).Msg("seeded placeholder messages")
	}
}

// skip classifies a transition error. It returns true when the message must
// be skipped: a conflict (someone else applied it) or a store failure.
func (s *Scheduler) skip(res *Result, kind, id string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrTransitionConflict):
		res.Conflicts++
		metrics.TransitionConflicts.WithLabelValues(kind).Inc()
		s.logger.Debug().Str("id", id).Str("transition", kind).Msg("transition already applied elsewhere")
	default:
		s.storeError(res, kind, id, err)
	}
	return true
}

func (s *Scheduler) storeError(res *Result, op, id string, err error) {
	res.Errors++
	metrics.StoreErrors.WithLabelValues(op).Inc()
	ev := s.logger.Error().Err(err).Str("op", op)
	if id != "" {
		ev = ev.Str("id", id)
	}
	ev.Msg("store unavailable, retrying next cycle")
}

// announce publishes a transition and appends it to the display log. Neither
// failure undoes the transition.
func (s *Scheduler) announce(ctx context.Context, m *model.Message, kind model.EventKind, at time.Time, topic string, payload any) {
	metrics.Transitions.WithLabelValues(string(kind)).Inc()
	s.logger.Info().
		Str("id", m.ID).
		Str("transition", string(kind)).
		Int("occurrence", m.DisplayCount).
		Msg("message " + string(kind))

	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		s.logger.Error().Err(err).Str("id", m.ID).Str("topic", topic).Msg("publish failed")
	}

	ev := &model.Event{
		MessageID:  m.ID,
		Kind:       kind,
		Occurrence: m.DisplayCount,
		At:         at,
		Instance:   s.cfg.Instance,
	}
	if err := s.store.RecordEvent(ctx, ev); err != nil {
		metrics.StoreErrors.WithLabelValues("record_event").Inc()
		s.logger.Warn().Err(err).Str("id", m.ID).Msg("display log write failed")
	}
}
