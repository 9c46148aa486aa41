package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/samarkanov/airflow-smolagents/internal/collector"
	"github.com/samarkanov/airflow-smolagents/internal/config"
	"github.com/samarkanov/airflow-smolagents/internal/control"
	"github.com/samarkanov/airflow-smolagents/internal/logging"
	"github.com/samarkanov/airflow-smolagents/internal/model"
	"github.com/samarkanov/airflow-smolagents/internal/notifier"
	"github.com/samarkanov/airflow-smolagents/internal/pipeline"
	"github.com/samarkanov/airflow-smolagents/internal/recorder"
	"github.com/samarkanov/airflow-smolagents/internal/report"
	"github.com/samarkanov/airflow-smolagents/internal/scheduler"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}
	logger.Info().Strs("tickers", cfg.Pipeline.Tickers).Int("window", cfg.Pipeline.Window).Msg("report daemon starting")

	fetcher, err := collector.NewHTTPFetcher(cfg.Pipeline.FetchTimeout(), cfg.Proxy)
	if err != nil {
		logger.Fatal().Err(err).Msg("init fetcher")
	}
	assembler := report.NewAssembler(report.NewChartRenderer(), logger)
	assembler.Title = cfg.Report.Title
	assembler.Concurrency = cfg.Pipeline.Concurrency
	p := pipeline.New(fetcher, assembler, logger)
	p.Concurrency = cfg.Pipeline.Concurrency

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctrl := control.NewController(p, fetcher, rec, cfg.Pipeline, logger)

	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		ctrl.Notifier = tn
	}

	sched := scheduler.NewScheduler(ctx, ctrl, logger)
	if err := sched.RegisterAll(cfg.Control.RescanCron, cfg.Control.RunCron); err != nil {
		logger.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info().Msg("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info().Msg("RUN_ON_START enabled, starting a run now")
		if _, err := ctrl.Start(ctx, model.TriggerManual, config.Pipeline{}); err != nil {
			logger.Error().Err(err).Msg("start run")
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := control.NewServer(ctx, ctrl, logger)
	if err := srv.ListenAndServe(ctx, cfg.Control.Addr); err != nil {
		logger.Error().Err(err).Msg("control server")
		cancel()
	}

	logger.Info().Msg("shutdown signal received, waiting for runs")
	ctrl.Wait()
	logger.Info().Msg("report daemon stopped")
}
