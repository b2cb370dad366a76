package scheduler

import (
	"context"

	"aspire-sync/internal/config"
	"aspire-sync/internal/features/sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Register wires the recurring incremental sync onto the application
// lifecycle. The schedule comes from SYNC_SCHEDULE, nightly at 01:00 by
// default.
func Register(lc fx.Lifecycle, cfg *config.Config, svc sync.Service, log *zap.Logger) error {
	c := cron.New()

	_, err := c.AddFunc(cfg.SyncSchedule, func() {
		log.Info("scheduled incremental sync starting")
		if _, err := svc.IncrementalSync(context.Background()); err != nil {
			log.Error("scheduled incremental sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			log.Info("sync scheduler started", zap.String("schedule", cfg.SyncSchedule))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-c.Stop().Done()
			return nil
		},
	})

	return nil
}
