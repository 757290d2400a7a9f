// Package scheduler runs a function repeatedly on a background
// goroutine, waiting a fixed delay between the end of one invocation
// and the start of the next (spec §4.9).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunnerRecord is one append-only entry in the scheduler's execution
// history.
type RunnerRecord struct {
	RunnerID   int       `json:"runner_id"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Scheduler periodically invokes a function on its own goroutine until
// stopped. Start and Stop are idempotent and safe to call concurrently.
type Scheduler struct {
	fn     func(ctx context.Context) error
	delay  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	history []RunnerRecord
	nextID  int
}

// New builds a Scheduler that calls fn, waiting delay between
// invocations.
func New(fn func(ctx context.Context) error, delay time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		fn:     fn,
		delay:  delay,
		logger: logger,
		nextID: 1,
	}
}

// Start launches the background goroutine if it is not already
// running. Calling Start again while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Info().Msg("scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info().Dur("delay", s.delay).Msg("starting scheduler")
	go s.run(ctx)
}

// Stop signals the background goroutine to exit and blocks until it
// has. Calling Stop when not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	s.logger.Info().Msg("stopping scheduler")
	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// GetRunnersHistory returns a snapshot of every recorded invocation.
func (s *Scheduler) GetRunnersHistory() []RunnerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunnerRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	for {
		s.invoke(ctx)
		s.recordRun()

		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// invoke calls fn, recovering a panic as a logged error so one broken
// iteration never kills the scheduler.
func (s *Scheduler) invoke(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("recovered panic in scheduled function")
		}
	}()
	if err := s.fn(ctx); err != nil {
		s.logger.Error().Err(err).Msg("error in scheduled function")
	}
}

func (s *Scheduler) recordRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, RunnerRecord{RunnerID: s.nextID, ExecutedAt: time.Now()})
	s.nextID++
}
