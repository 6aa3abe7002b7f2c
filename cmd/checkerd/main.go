package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	scheduler "github.com/queryreport/scheduler"
	"github.com/queryreport/scheduler/pkg/server"
)

func main() {
	zerolog.DurationFieldUnit = time.Second

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("checkerd exited")
	}
}

func run() error {
	cfg, err := scheduler.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PidFile != "" {
		pidFile := scheduler.NewPidFile(cfg.PidFile)
		if err := pidFile.Acquire(); err != nil {
			return err
		}
		defer pidFile.Release()
	}

	db, err := sqlx.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	store := scheduler.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	queue := scheduler.NewExecutionQueue(db)
	clock := scheduler.SystemClock()

	api := scheduler.NewAPI(store, queue, clock, cfg.Checker)
	go func() {
		if err := server.Run(ctx, api.Handler(), cfg.HTTPPort); err != nil {
			log.Err(err).Msg("http server failed")
			stop()
		}
	}()

	checker := scheduler.NewChecker(store, queue, clock, cfg.Checker)

	return checker.Run(ctx)
}
