// Package scheduler drives the polling engine: it enumerates active
// (component, branch) tuples, enforces cadence and concurrency bounds, and
// runs the per-tuple pipeline probe, download, extract, history, prune.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/buildforge/wincore/internal/activity"
	"github.com/buildforge/wincore/internal/config"
	"github.com/buildforge/wincore/internal/download"
	"github.com/buildforge/wincore/internal/extract"
	"github.com/buildforge/wincore/internal/jfrog"
	"github.com/buildforge/wincore/internal/retention"
	"github.com/buildforge/wincore/internal/store"
	"github.com/buildforge/wincore/pkg/logger"
)

// lockTimeout is how long a pipeline waits for its tuple lock before being
// skipped with a warning.
const lockTimeout = 2 * time.Second

// Summary aggregates one polling cycle.
type Summary struct {
	Probed     int
	NewBuilds  int
	Downloaded int
	Extracted  int
	Failed     int
	Pruned     int
}

func (s Summary) String() string {
	return fmt.Sprintf("probed=%d new_builds=%d downloaded=%d extracted=%d failed=%d pruned=%d",
		s.Probed, s.NewBuilds, s.Downloaded, s.Extracted, s.Failed, s.Pruned)
}

// Deps wires the scheduler to the rest of the engine.
type Deps struct {
	Store     *store.Store
	Config    *config.Provider
	Client    *jfrog.Client
	Downloads *download.Manager
	Extractor *extract.Extractor
	Retention *retention.Manager
	Activity  *activity.Log
	Logger    *logger.Logger
	Clock     clock.Clock

	TickInterval  time.Duration
	ShutdownGrace time.Duration
	BaseDrive     string
}

// Scheduler owns the tick loop and the concurrency machinery.
type Scheduler struct {
	deps Deps

	maxWorkers int64
	sem        *semaphore.Weighted
	locks      *tupleLocks

	mu       sync.Mutex
	inflight map[string]bool
	lastPoll map[string]time.Time
	queued   int64

	wg sync.WaitGroup
}

// New creates a scheduler. The global semaphore is sized from
// MaxConcurrentThreads at construction.
func New(deps Deps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = 5 * time.Second
	}
	if deps.ShutdownGrace <= 0 {
		deps.ShutdownGrace = 60 * time.Second
	}

	max := int64(deps.Config.MaxConcurrentThreads(context.Background()))
	return &Scheduler{
		deps:       deps,
		maxWorkers: max,
		sem:        semaphore.NewWeighted(max),
		locks:      newTupleLocks(deps.Clock),
		inflight:   make(map[string]bool),
		lastPoll:   make(map[string]time.Time),
	}
}

// RunOnce runs a single polling cycle over every currently-eligible tuple and
// waits for all pipelines to finish.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	configs, err := s.activeConfigs(ctx)
	if err != nil {
		s.critical(ctx, fmt.Sprintf("failed to load active configs: %v", err))
		return Summary{}, err
	}

	var (
		sumMu   sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	now := s.deps.Clock.Now()
	for _, ac := range configs {
		if !s.eligible(ac, now) {
			continue
		}
		if !s.markInflight(ac) {
			continue
		}
		wg.Add(1)
		go func(ac store.ActiveConfig) {
			defer wg.Done()
			defer s.clearInflight(ac)

			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.sem.Release(1)

			out := s.runTuple(ctx, ac)
			sumMu.Lock()
			out.addTo(&summary)
			sumMu.Unlock()
		}(ac)
	}
	wg.Wait()
	return summary, nil
}

// Start runs the continuous tick loop until ctx is cancelled, then drains
// in-flight pipelines within the shutdown grace.
func (s *Scheduler) Start(ctx context.Context) error {
	// Pipelines run on their own context so that a stop signal does not kill
	// them instantly; they get the shutdown grace first.
	pipeCtx, pipeCancel := context.WithCancel(context.Background())
	defer pipeCancel()

	ticker := s.deps.Clock.Ticker(s.deps.TickInterval)
	defer ticker.Stop()

	s.deps.Logger.Info("polling started",
		slog.Int64("max_concurrency", s.maxWorkers),
		slog.Duration("tick", s.deps.TickInterval))

	for {
		select {
		case <-ctx.Done():
			s.deps.Logger.Info("stop signal received, draining in-flight pipelines",
				slog.Duration("grace", s.deps.ShutdownGrace))
			s.drain(pipeCancel)
			return nil
		case <-ticker.C:
			s.tick(pipeCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	configs, err := s.activeConfigs(ctx)
	if err != nil {
		// Scheduler-level fault: skip this tick, keep running.
		s.critical(ctx, fmt.Sprintf("skipping tick, failed to load active configs: %v", err))
		return
	}

	now := s.deps.Clock.Now()
	for _, ac := range configs {
		if !s.eligible(ac, now) {
			continue
		}

		s.mu.Lock()
		backlog := s.queued
		s.mu.Unlock()
		if backlog >= 10*s.maxWorkers {
			s.deps.Logger.Debug("queue saturated, deferring tuple to next tick",
				slog.String("tuple", tupleOf(ac).String()))
			continue
		}

		if !s.markInflight(ac) {
			continue
		}
		s.addQueued(1)
		s.wg.Add(1)
		go func(ac store.ActiveConfig) {
			defer s.wg.Done()
			defer s.clearInflight(ac)

			err := s.sem.Acquire(ctx, 1)
			s.addQueued(-1)
			if err != nil {
				return
			}
			defer s.sem.Release(1)

			s.runTuple(ctx, ac)
		}(ac)
	}
}

// drain waits for in-flight pipelines up to the grace, then cancels the rest.
func (s *Scheduler) drain(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := s.deps.Clock.Timer(s.deps.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.deps.Logger.Warn("shutdown grace expired, cancelling remaining pipelines")
		cancel()
		<-done
	}
}

// activeConfigs loads the tuple set, retrying once on a short DB failure.
func (s *Scheduler) activeConfigs(ctx context.Context) ([]store.ActiveConfig, error) {
	configs, err := s.deps.Store.ActiveConfigs(ctx)
	if err == nil {
		return configs, nil
	}
	s.deps.Logger.Warn("active config load failed, retrying once",
		slog.String("error", err.Error()))
	return s.deps.Store.ActiveConfigs(ctx)
}

func (s *Scheduler) eligible(ac store.ActiveConfig, now time.Time) bool {
	key := tupleOf(ac).Key()
	s.mu.Lock()
	last, polled := s.lastPoll[key]
	s.mu.Unlock()
	if !polled {
		return true
	}
	interval := ac.Polling.Interval(s.deps.Config.DefaultPollingFrequency(context.Background()))
	return !now.Before(last.Add(interval))
}

func (s *Scheduler) markPolled(ac store.ActiveConfig) {
	s.mu.Lock()
	s.lastPoll[tupleOf(ac).Key()] = s.deps.Clock.Now()
	s.mu.Unlock()
}

func (s *Scheduler) markInflight(ac store.ActiveConfig) bool {
	key := tupleOf(ac).Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *Scheduler) clearInflight(ac store.ActiveConfig) {
	s.mu.Lock()
	delete(s.inflight, tupleOf(ac).Key())
	s.mu.Unlock()
}

func (s *Scheduler) addQueued(n int64) {
	s.mu.Lock()
	s.queued += n
	s.mu.Unlock()
}

func (s *Scheduler) critical(ctx context.Context, msg string) {
	s.deps.Logger.Error("scheduler fault", fmt.Errorf("%s", msg))
	s.deps.Activity.Append(ctx, activity.Entry{
		Level:   activity.LevelCritical,
		Message: msg,
	})
}
