// Package scheduler runs the recurring billing jobs
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/cotizabot/cotizabot/config"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/redis/go-redis/v9"
)

const (
	JobMonthlyCharges = "monthly_charges"
	JobOverdueCheck   = "overdue_check"

	// A run marker outlives the day it covers so a restarted instance does not repeat it.
	runMarkerTTL = 26 * time.Hour
)

// BillingScheduler triggers the overdue check once a day and the monthly charge run on the 1st.
// With Redis, a SETNX marker per job and day keeps concurrent instances from running the same
// job twice; without it the marker is kept in memory.
type BillingScheduler struct {
	billing  businessflow.BillingFlow
	rc       *redis.Client
	cacheCfg config.CacheConfig
	interval time.Duration
	lockTTL  time.Duration
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]string
}

// NewBillingScheduler creates the scheduler. rc may be nil.
func NewBillingScheduler(billing businessflow.BillingFlow, rc *redis.Client, cacheCfg config.CacheConfig, cfg config.SchedulerConfig, billingCfg config.BillingConfig, logger *slog.Logger) *BillingScheduler {
	interval := cfg.BillingInterval
	if interval <= 0 {
		interval = time.Hour
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	loc, err := utils.LoadLocation(billingCfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return &BillingScheduler{
		billing:  billing,
		rc:       rc,
		cacheCfg: cacheCfg,
		interval: interval,
		lockTTL:  lockTTL,
		loc:      loc,
		logger:   logger.With("component", "billing_scheduler"),
		now:      utils.UTCNow,
		lastRun:  make(map[string]string),
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
// that waits for the current tick to finish.
func (s *BillingScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *BillingScheduler) runOnce(ctx context.Context) {
	local := s.now().In(s.loc)
	day := local.Format("2006-01-02")

	// The overdue check must see the due date of the cycle that just ended, before the new
	// charge moves it to next month.
	s.runJob(ctx, JobOverdueCheck, day, func(ctx context.Context) error {
		_, err := s.billing.CheckOverdueAccounts(ctx, businessflow.SystemMetadata("scheduler"))
		return err
	})

	if businessflow.IsFirstOfMonth(local) {
		s.runJob(ctx, JobMonthlyCharges, day, func(ctx context.Context) error {
			_, err := s.billing.GenerateMonthlyCharges(ctx, false, businessflow.SystemMetadata("scheduler"))
			return err
		})
	}
}

// runJob runs fn at most once per job and day. A failed run clears its marker so a later tick retries.
func (s *BillingScheduler) runJob(ctx context.Context, job, day string, fn func(context.Context) error) {
	acquired, err := s.acquire(ctx, job, day)
	if err != nil {
		s.logger.Error("failed to acquire job marker", "job", job, "error", err)
		return
	}
	if !acquired {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	start := time.Now()
	if err := fn(runCtx); err != nil {
		s.logger.Error("billing job failed", "job", job, "day", day, "error", err)
		s.release(ctx, job, day)
		return
	}
	s.logger.Info("billing job finished", "job", job, "day", day, "duration", time.Since(start))
}

func (s *BillingScheduler) markerKey(job, day string) string {
	return s.cacheCfg.Key(fmt.Sprintf("jobs:%s:%s", job, day))
}

func (s *BillingScheduler) acquire(ctx context.Context, job, day string) (bool, error) {
	if s.rc != nil {
		return s.rc.SetNX(ctx, s.markerKey(job, day), utils.UTCNow().Format(time.RFC3339), runMarkerTTL).Result()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun[job] == day {
		return false, nil
	}
	s.lastRun[job] = day
	return true, nil
}

func (s *BillingScheduler) release(ctx context.Context, job, day string) {
	if s.rc != nil {
		if err := s.rc.Del(context.WithoutCancel(ctx), s.markerKey(job, day)).Err(); err != nil {
			s.logger.Warn("failed to clear job marker", "job", job, "error", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun[job] == day {
		delete(s.lastRun, job)
	}
}
