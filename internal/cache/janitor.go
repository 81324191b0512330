package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "turnocal/internal/log"
)

// Sweeper is anything a Janitor can evict from.
type Sweeper interface {
	Sweep(now time.Time, maxAge time.Duration) int
	Len() int
}

// Janitor sweeps a cache on its own cron schedule, evicting entries older
// than twice the interval.
type Janitor struct {
	target   Sweeper
	interval time.Duration
	cron     *cron.Cron
}

// NewJanitor schedules target to be swept every interval.
func NewJanitor(target Sweeper, interval time.Duration) (*Janitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cache: janitor interval must be positive, got %s", interval)
	}
	j := &Janitor{
		target:   target,
		interval: interval,
		cron:     cron.New(),
	}
	if _, err := j.cron.AddFunc(fmt.Sprintf("@every %s", interval), j.RunOnce); err != nil {
		return nil, fmt.Errorf("cache: schedule janitor: %w", err)
	}
	return j, nil
}

// MaxAge is the eviction threshold.
func (j *Janitor) MaxAge() time.Duration {
	return 2 * j.interval
}

// RunOnce performs a single sweep now.
func (j *Janitor) RunOnce() {
	evicted := j.target.Sweep(time.Now(), j.MaxAge())
	if evicted > 0 {
		appLog.Info("cache janitor evicted entries", "evicted", evicted, "remaining", j.target.Len())
	} else {
		appLog.Debug("cache janitor sweep", "remaining", j.target.Len())
	}
}

// Start runs the schedule in the background.
func (j *Janitor) Start() {
	appLog.Info("cache janitor started", "interval", j.interval.String(), "max_age", j.MaxAge().String())
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	appLog.Info("cache janitor stopped")
}
