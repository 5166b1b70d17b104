package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Tenants whose tokens expire within this horizon get refreshed by the
// daily sweep instead of waiting for the next webhook to trigger it.
const tokenSweepHorizon = 24 * time.Hour

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 5m", func() {
		if err := a.instances.ReconcileAll(context.Background()); err != nil {
			zap.L().Error("instance reconcile sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.refreshExpiringTenants(context.Background())
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

func (a *Application) refreshExpiringTenants(ctx context.Context) {
	tenants, err := a.store.ListTenants(ctx)
	if err != nil {
		zap.L().Error("tenant token sweep failed", zap.Error(err))
		return
	}
	for _, t := range tenants {
		if time.Until(t.TokenExpiresAt) > tokenSweepHorizon {
			continue
		}
		if err := a.platform.RefreshTenant(ctx, t.LocationID); err != nil {
			zap.L().Warn("tenant token refresh failed",
				zap.String("location_id", t.LocationID), zap.Error(err))
		}
	}
}
