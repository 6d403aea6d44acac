// ABOUTME: gocron-driven periodic cross-check of every device
// ABOUTME: Sweep is also callable directly for on-demand runs

package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/2389/hvac-mesh/internal/integrator"
)

// DeviceLister lists device ids. store.BusinessStore satisfies it.
type DeviceLister interface {
	ListDeviceIDs(ctx context.Context) ([]int64, error)
}

// CrossChecker runs the cross-check workflow. *integrator.Integrator satisfies it.
type CrossChecker interface {
	CrossCheck(ctx context.Context, deviceID int64) (integrator.CrossCheckResult, error)
}

// Report summarizes one sweep.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Devices   int
	Matches   int
	Failures  int
}

// Sweeper cross-checks every device on an interval.
type Sweeper struct {
	devices  DeviceLister
	checker  CrossChecker
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
	ctx       context.Context
	last      *Report
	runs      int
}

// NewSweeper creates a sweeper. A nil logger uses slog.Default().
func NewSweeper(devices DeviceLister, checker CrossChecker, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		devices:  devices,
		checker:  checker,
		interval: interval,
		logger:   logger.With("component", "schedule"),
	}
}

// Sweep cross-checks every device once. A failed cross-check is counted and
// the sweep continues; only a failure to list devices is returned.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	rep := Report{StartedAt: time.Now().UTC()}

	ids, err := s.devices.ListDeviceIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing devices: %w", err)
	}
	rep.Devices = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		res, err := s.checker.CrossCheck(ctx, id)
		if err != nil {
			rep.Failures++
			s.logger.Warn("cross-check failed", "device_id", id, "error", err)
			continue
		}
		if res.Match != nil {
			rep.Matches++
		}
	}
	rep.Duration = time.Since(rep.StartedAt)

	s.mu.Lock()
	s.last = &rep
	s.runs++
	s.mu.Unlock()
	return rep, nil
}

// Start schedules the sweep; the first run happens immediately. Sweeps run
// with ctx until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return errors.New("sweeper already started")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating gocron scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithName("correlation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("creating sweep job: %w", err)
	}

	s.ctx = ctx
	s.scheduler = sched
	sched.Start()
	s.logger.Info("correlation sweep scheduled", "interval", s.interval)
	return nil
}

func (s *Sweeper) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	rep, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("correlation sweep failed", "error", err)
		return
	}
	s.logger.Info("correlation sweep finished",
		"devices", rep.Devices,
		"matches", rep.Matches,
		"failures", rep.Failures,
		"duration", rep.Duration)
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	sched := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if sched == nil {
		return nil
	}
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return nil
}

// Last returns the most recent completed sweep and the number of sweeps run.
func (s *Sweeper) Last() (*Report, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, s.runs
	}
	rep := *s.last
	return &rep, s.runs
}
