package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/internal/config"
	"github.com/briangreenhill/buddy/internal/jobs"
	"github.com/briangreenhill/buddy/internal/storage"
	"github.com/briangreenhill/buddy/internal/workspace"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "buddy-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	// The sweep only makes sense against storage the api processes share.
	switch cfg.Storage {
	case storage.BackendRedis, storage.BackendPostgres:
	default:
		logger.Fatal().Str("storage", cfg.Storage).Msg("worker needs redis or postgres storage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer func() { _ = storage.Close(store) }()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			jobs.QueueMaintenance: 5,
			"default":             1,
		},
		Logger:   asynqLogger{logger},
		LogLevel: asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskSessionSweep, jobs.SweepHandler{
		Store: store,
		Also:  []string{workspace.CookieKey},
		Log:   logger,
	})

	sweep, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{Prefix: "visitor"})
	if err != nil {
		logger.Fatal().Err(err).Msg("build sweep task")
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{logger}, LogLevel: asynq.WarnLevel})
	entryID, err := scheduler.Register(cfg.SweepSchedule, sweep)
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("register sweep")
	}
	logger.Info().Str("entry", entryID).Str("schedule", cfg.SweepSchedule).Msg("session sweep scheduled")

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Msg("worker running")
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker stopped")
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
