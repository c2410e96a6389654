// Package maintenance runs the two daily housekeeping jobs: stale-device
// detection and orphan-index cleanup, scheduled with the same cron
// expression syntax the control plane's configuration surface exposes.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/twin"
)

// Jobs owns the cron scheduler and the two maintenance tasks.
type Jobs struct {
	store              twin.Store
	log                logger.ComponentLogger
	staleThresholdDays int
	now                func() time.Time

	cron *cron.Cron

	staleCount  int64
	orphanCount int64
}

// New builds Jobs against store, detecting devices idle longer than
// staleThresholdDays.
func New(store twin.Store, staleThresholdDays int, log logger.ComponentLogger) *Jobs {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Jobs{
		store:              store,
		log:                log.WithComponent("maintenance"),
		staleThresholdDays: staleThresholdDays,
		now:                time.Now,
		cron:               cron.New(cron.WithSeconds()),
	}
}

// WithClock overrides the time source for deterministic tests.
func (j *Jobs) WithClock(now func() time.Time) *Jobs {
	j.now = now
	return j
}

// Schedule registers the stale-device and orphan-cleanup jobs under
// staleCron and orphanCron (6-field cron expressions, seconds first).
func (j *Jobs) Schedule(staleCron, orphanCron string) error {
	if _, err := j.cron.AddFunc(staleCron, func() { j.detectStaleDevices(context.Background()) }); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(orphanCron, func() { j.cleanOrphans(context.Background()) }); err != nil {
		return err
	}
	return nil
}

// Start runs the scheduler in the background.
func (j *Jobs) Start() { j.cron.Start() }

// Stop halts the scheduler, waiting for any running job to finish.
func (j *Jobs) Stop() { <-j.cron.Stop().Done() }

// StaleCount returns how many devices the most recent sweep flagged.
func (j *Jobs) StaleCount() int64 { return atomic.LoadInt64(&j.staleCount) }

// OrphanCount returns how many index entries the most recent sweep removed.
func (j *Jobs) OrphanCount() int64 { return atomic.LoadInt64(&j.orphanCount) }

// detectStaleDevices logs and counts devices whose last reported activity
// is older than staleThresholdDays; it never deletes a device record.
func (j *Jobs) detectStaleDevices(ctx context.Context) {
	ids, err := j.store.GetAllIndexedDeviceKeys(ctx)
	if err != nil {
		j.log.Warn("stale detection: reading index failed", map[string]interface{}{"error": err.Error()})
		return
	}

	cutoff := j.now().AddDate(0, 0, -j.staleThresholdDays)
	var stale int64
	for _, id := range ids {
		last, err := j.store.FindLastActivity(ctx, id)
		if err != nil {
			j.log.Warn("stale detection: reading last activity failed", map[string]interface{}{"device": id.String(), "error": err.Error()})
			continue
		}
		if last == nil || last.Before(cutoff) {
			stale++
			j.log.Info("device has gone stale", map[string]interface{}{"device": id.String()})
		}
	}
	atomic.StoreInt64(&j.staleCount, stale)
}

// cleanOrphans removes active-output index entries whose device record no
// longer exists (the device was deleted without its index entry being
// cleared in the same transaction).
func (j *Jobs) cleanOrphans(ctx context.Context) {
	ids, err := j.store.GetAllIndexedDeviceKeys(ctx)
	if err != nil {
		j.log.Warn("orphan cleanup: reading index failed", map[string]interface{}{"error": err.Error()})
		return
	}

	var removed int64
	for _, id := range ids {
		desired, err := j.store.FindDesiredState(ctx, id)
		if err != nil {
			j.log.Warn("orphan cleanup: reading desired state failed", map[string]interface{}{"device": id.String(), "error": err.Error()})
			continue
		}
		if desired != nil {
			continue
		}
		if err := j.store.RemoveFromIndex(ctx, id); err != nil {
			j.log.Warn("orphan cleanup: removing index entry failed", map[string]interface{}{"device": id.String(), "error": err.Error()})
			continue
		}
		removed++
		j.log.Info("removed orphaned index entry", map[string]interface{}{"device": id.String()})
	}
	atomic.StoreInt64(&j.orphanCount, removed)
}
