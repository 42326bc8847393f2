package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"dropwatch/internal/modkit"
	"dropwatch/internal/modkit/module"
	"dropwatch/internal/platform/config"
	"dropwatch/internal/platform/logger"
	"dropwatch/internal/platform/store"

	discoverymod "dropwatch/internal/services/discovery/module"
	rollupmod "dropwatch/internal/services/rollup/module"
	schedulermod "dropwatch/internal/services/scheduler/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()
	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled:    chCfg.MayBool("ENABLED", false),
			URL:        chCfg.MayString("DBURL", ""),
			ClientName: "poller",
			ClientTag:  chCfg.MayString("TAG", ""),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var (
		fRefreshBaselines = flag.Bool("refresh-baselines", false, "re-baseline every window bucket in place and exit")
		fResetBuckets     = flag.Bool("reset-buckets", false, "wipe buckets, events, projection and open sessions, then exit")
		fTickOnce         = flag.Bool("tick-once", false, "run one scheduler tick and exit")
		fDaily            = flag.Bool("daily", false, "run the daily sliding-window job once and exit")
	)
	flag.Parse()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	disc := discoverymod.New(deps)
	roll := rollupmod.New(deps)
	module.Register(disc.Name(), disc.Ports())
	module.Register(roll.Name(), roll.Ports())

	poller := disc.Ports().(discoverymod.Ports).Poller
	rollup := roll.Ports().(rollupmod.Ports).Rollup

	sched := schedulermod.New(deps, poller, rollup)
	module.Register(sched.Name(), sched.Ports())
	scheduler := sched.Ports().(schedulermod.Ports).Scheduler

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *fRefreshBaselines:
		refreshed, failed, err := poller.RefreshBaselines(ctx, time.Now())
		if err != nil {
			l.Fatal().Err(err).Msg("baseline refresh failed")
		}
		l.Info().Int("refreshed", refreshed).Strs("failed", failed).Msg("baseline refresh complete")

	case *fResetBuckets:
		if err := poller.ResetBuckets(ctx); err != nil {
			l.Fatal().Err(err).Msg("bucket reset failed")
		}
		l.Info().Msg("buckets reset; next tick rebuilds the window")

	case *fTickOnce:
		stats, err := scheduler.TickOnce(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("tick failed")
		}
		l.Info().Int("eligible", stats.Eligible).Int("dispatched", stats.Dispatch).Msg("tick complete")

	case *fDaily:
		if err := scheduler.RunDailyOnce(ctx); err != nil {
			l.Fatal().Err(err).Msg("daily job failed")
		}

	default:
		if err := scheduler.Run(ctx); err != nil {
			l.Fatal().Err(err).Msg("scheduler stopped")
		}
	}
}
