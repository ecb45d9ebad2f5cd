package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner invokes the driver's passes on cron schedules
type Runner struct {
	cron    *cron.Cron
	driver  *Driver
	logger  *logrus.Logger
	drain   time.Duration
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	ctx     context.Context
}

// RunnerConfig holds the two pass schedules in robfig/cron syntax
// ("@every 5m", "*/5 * * * *")
type RunnerConfig struct {
	RulesSchedule  string
	AlertsSchedule string
	Location       *time.Location
	// DrainTimeout bounds how long Stop waits for running passes before
	// cancelling them. Defaults to 30s.
	DrainTimeout time.Duration
}

func NewRunner(driver *Driver, cfg RunnerConfig, logger *logrus.Logger) (*Runner, error) {
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}

	cronLogger := cron.PrintfLogger(logger)
	r := &Runner{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger),
				cron.Recover(cronLogger),
			),
		),
		driver: driver,
		logger: logger,
		drain:  drain,
		ctx:    context.Background(),
	}

	if _, err := r.cron.AddFunc(cfg.RulesSchedule, func() { r.driver.RunRulesPass(r.passContext()) }); err != nil {
		return nil, fmt.Errorf("invalid rules schedule %q: %w", cfg.RulesSchedule, err)
	}
	if _, err := r.cron.AddFunc(cfg.AlertsSchedule, func() { r.driver.RunAlertsPass(r.passContext()) }); err != nil {
		return nil, fmt.Errorf("invalid alerts schedule %q: %w", cfg.AlertsSchedule, err)
	}

	return r, nil
}

// Start starts the cron loop. Passes keep ctx's values but not its
// cancellation; only Stop cancels them, after the drain timeout.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("scheduler is already running")
	}

	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.cron.Start()
	r.running = true

	entries := r.cron.Entries()
	fields := logrus.Fields{}
	if len(entries) == 2 {
		fields["next_rules_pass"] = entries[0].Next
		fields["next_alerts_pass"] = entries[1].Next
	}
	r.logger.WithFields(fields).Info("Automation scheduler started")
	return nil
}

// Stop stops scheduling and waits up to the drain timeout for running passes
// to finish before cancelling them
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	done := r.cron.Stop()

	select {
	case <-done.Done():
		r.logger.Info("All scheduled passes completed")
	case <-time.After(r.drain):
		r.logger.WithField("drain_timeout", r.drain).Warn("Timeout waiting for scheduled passes to complete, cancelling them")
	}
	cancel()

	r.logger.Info("Automation scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) passContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}
