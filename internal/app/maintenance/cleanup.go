package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/metrics"
)

const (
	defaultRetentionDays     = 30
	defaultNotificationsSpec = "@daily"
	defaultCacheSpec         = "@hourly"

	jobNotifications = "notifications"
	jobCache         = "cache"
)

// JobRun is the outcome of the latest run of a job. At is zero until the job
// first runs.
type JobRun struct {
	Job string
	At  time.Time
	Err error
}

// NotificationPruner deletes notifications older than a number of days.
type NotificationPruner interface {
	CleanupOldNotifications(ctx context.Context, daysOld int) int64
}

// CachePurger removes expired durable store entries.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance tasks: notification retention
// and purging expired durable store entries.
type Cleaner struct {
	notifications NotificationPruner
	cache         CachePurger
	cron          *cron.Cron
	log           *zap.Logger
	retention     int

	notificationSchedule string
	cacheSchedule        string

	mu   sync.Mutex
	runs map[string]JobRun
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithRetentionDays adjusts how long notifications are kept.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithNotificationSchedule overrides the cron specification for notification retention.
func WithNotificationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.notificationSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for the durable store sweep.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips its job; the Redis
// store expires keys itself and is passed as nil.
func NewCleaner(notifications NotificationPruner, cache CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		notifications:        notifications,
		cache:                cache,
		retention:            defaultRetentionDays,
		notificationSchedule: defaultNotificationsSpec,
		cacheSchedule:        defaultCacheSpec,
		log:                  logger.WithModule("maintenance"),
		runs:                 make(map[string]JobRun),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.notifications == nil && c.cache == nil {
		return nil
	}

	if c.notifications != nil {
		if _, err := c.cron.AddFunc(c.notificationSchedule, func() {
			c.pruneNotifications(context.Background())
		}); err != nil {
			return fmt.Errorf("schedule notification retention: %w", err)
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if err := c.purgeCache(context.Background()); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule cache purge: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially and returns
// every failure combined.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.notifications != nil {
		c.pruneNotifications(ctx)
	}

	if c.cache != nil {
		errs = multierr.Append(errs, c.purgeCache(ctx))
	}

	return errs
}

// The notification service swallows its own failures, so retention never errors here.
func (c *Cleaner) pruneNotifications(ctx context.Context) {
	started := time.Now()
	removed := c.notifications.CleanupOldNotifications(ctx, c.retention)
	c.record(jobNotifications, nil)
	metrics.MaintenanceRuns.WithLabelValues(jobNotifications, "ok").Inc()
	c.log.Info("notification retention complete",
		zap.Int64("removed", removed),
		zap.Int("retention_days", c.retention),
		zap.Duration("took", time.Since(started)),
	)
}

func (c *Cleaner) purgeCache(ctx context.Context) error {
	removed, err := c.cache.PurgeExpired(ctx)
	if err != nil {
		err = fmt.Errorf("purge expired cache entries: %w", err)
		c.record(jobCache, err)
		metrics.MaintenanceRuns.WithLabelValues(jobCache, "error").Inc()
		return err
	}
	c.record(jobCache, nil)
	metrics.MaintenanceRuns.WithLabelValues(jobCache, "ok").Inc()
	c.log.Debug("cache purge complete", zap.Int64("removed", removed))
	return nil
}

func (c *Cleaner) record(job string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[job] = JobRun{Job: job, At: time.Now(), Err: err}
}

// LastRuns returns the latest outcome of every enabled job.
func (c *Cleaner) LastRuns() []JobRun {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []JobRun
	if c.notifications != nil {
		out = append(out, c.lastRunLocked(jobNotifications))
	}
	if c.cache != nil {
		out = append(out, c.lastRunLocked(jobCache))
	}
	return out
}

func (c *Cleaner) lastRunLocked(job string) JobRun {
	if run, ok := c.runs[job]; ok {
		return run
	}
	return JobRun{Job: job}
}
