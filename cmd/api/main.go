package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokenshare-backend/internal/config"
	"tokenshare-backend/internal/infrastructure/database"
	"tokenshare-backend/internal/infrastructure/scheduler"
	"tokenshare-backend/internal/interfaces/router"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	config.SetupLogging(cfg)

	app, comps, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if comps.DB != nil {
		sqlDB, err := comps.DB.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres: get DB")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("postgres connection failed")
		}
		if err := database.AutoMigrate(comps.DB); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		log.Info().Msg("postgres connected")
	}
	if err := comps.Rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	log.Info().Msg("redis connected")

	if comps.Sales != nil && cfg.LedgerReconcileSchedule != "" {
		rec := &scheduler.LedgerReconciler{
			Sales:    comps.Sales,
			Batch:    cfg.LedgerReconcileBatch,
			Schedule: cfg.LedgerReconcileSchedule,
		}
		c, err := rec.Start(ctx)
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.LedgerReconcileSchedule).Msg("ledger reconciler")
		}
		defer func() { <-c.Stop().Done() }()
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(cfg.LedgerTimeout + 5*time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error().Err(err).Msg("listen")
	}
	_ = comps.Rdb.Close()
}
