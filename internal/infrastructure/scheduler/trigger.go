package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexus/backend/internal/domain/integration"
)

// TriggerConfig holds configuration for the periodic trigger
type TriggerConfig struct {
	// SyncInterval is how often an incremental sync of all accounts runs
	SyncInterval time.Duration

	// DailySchedule is a five-field cron expression; only the minute and
	// hour fields are honored, the rest must be "*"
	DailySchedule string

	// DailyWindowDays bounds the daily reconcile to recent orders
	DailyWindowDays int

	// DailyMaxWorkers overrides the reconcile fetch concurrency
	DailyMaxWorkers int

	// CheckInterval is how often the trigger wakes up
	CheckInterval time.Duration
}

// DefaultTriggerConfig returns the default trigger configuration
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		SyncInterval:    30 * time.Minute,
		DailySchedule:   "0 3 * * *",
		DailyWindowDays: 15,
		DailyMaxWorkers: 8,
		CheckInterval:   time.Minute,
	}
}

// parseDailySchedule extracts the hour and minute from a cron expression of
// the form "M H * * *".
func parseDailySchedule(expr string) (hour, minute int, err error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, expr)
	}
	minute, err = strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidSchedule, expr)
	}
	hour, err = strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidSchedule, expr)
	}
	for _, f := range fields[2:] {
		if f != "*" {
			return 0, 0, fmt.Errorf("%w: only daily schedules are supported, got %q", ErrInvalidSchedule, expr)
		}
	}
	return hour, minute, nil
}

// Trigger enqueues sync jobs on an interval and reconcile jobs once a day
type Trigger struct {
	config    TriggerConfig
	scheduler *Scheduler
	accounts  integration.AccountDirectory
	logger    *zap.Logger

	dailyHour   int
	dailyMinute int

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewTrigger creates a trigger; the daily schedule is validated here
func NewTrigger(
	config TriggerConfig,
	scheduler *Scheduler,
	accounts integration.AccountDirectory,
	logger *zap.Logger,
) (*Trigger, error) {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.DailySchedule == "" {
		config.DailySchedule = DefaultTriggerConfig().DailySchedule
	}
	hour, minute, err := parseDailySchedule(config.DailySchedule)
	if err != nil {
		return nil, err
	}
	return &Trigger{
		config:      config,
		scheduler:   scheduler,
		accounts:    accounts,
		logger:      logger,
		dailyHour:   hour,
		dailyMinute: minute,
	}, nil
}

// Start launches the trigger loops
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(2)
	go t.syncLoop(ctx)
	go t.dailyLoop(ctx)

	t.logger.Info("Sync trigger started",
		zap.Duration("sync_interval", t.config.SyncInterval),
		zap.String("daily_schedule", t.config.DailySchedule),
		zap.Int("daily_window_days", t.config.DailyWindowDays),
	)

	return nil
}

// Stop stops the trigger loops
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncLoop enqueues an all-account incremental sync at a fixed interval
func (t *Trigger) syncLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := NewJob(JobKindIncrementalSync, 0, t.scheduler.config.RetryAttempts)
			if err := t.scheduler.Submit(job); err != nil {
				t.logger.Error("Failed to submit incremental sync job", zap.Error(err))
			}
		}
	}
}

// dailyLoop fires the daily reconcile at the configured hour and minute
func (t *Trigger) dailyLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkDaily(ctx)
		}
	}
}

func (t *Trigger) checkDaily(ctx context.Context) {
	now := time.Now()
	currentDate := now.Format("2006-01-02")

	t.mu.Lock()
	alreadyRan := t.lastRunDate == currentDate
	t.mu.Unlock()
	if alreadyRan {
		return
	}
	if now.Hour() != t.dailyHour || now.Minute() != t.dailyMinute {
		return
	}

	t.mu.Lock()
	t.lastRunDate = currentDate
	t.mu.Unlock()

	t.logger.Info("Triggering daily reconciliation")
	t.TriggerReconcile(ctx)
}

// TriggerReconcile enqueues a reconcile job per registered account. It is
// also called directly for manual runs.
func (t *Trigger) TriggerReconcile(ctx context.Context) {
	accountIDs, err := t.accounts.AccountIDs(ctx)
	if err != nil {
		t.logger.Error("Failed to list accounts for daily reconcile", zap.Error(err))
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -t.config.DailyWindowDays)
	for _, accountID := range accountIDs {
		job := NewJob(JobKindReconcile, accountID, t.scheduler.config.RetryAttempts)
		job.Since = since
		job.MaxWorkers = t.config.DailyMaxWorkers
		if err := t.scheduler.Submit(job); err != nil {
			t.logger.Error("Failed to submit reconcile job",
				zap.Int64("account_id", accountID),
				zap.Error(err),
			)
		}
	}
}
