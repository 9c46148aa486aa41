package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/samarkanov/airflow-smolagents/internal/collector"
	"github.com/samarkanov/airflow-smolagents/internal/config"
	"github.com/samarkanov/airflow-smolagents/internal/control"
	"github.com/samarkanov/airflow-smolagents/internal/logging"
	"github.com/samarkanov/airflow-smolagents/internal/model"
	"github.com/samarkanov/airflow-smolagents/internal/pipeline"
	"github.com/samarkanov/airflow-smolagents/internal/recorder"
	"github.com/samarkanov/airflow-smolagents/internal/report"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit.
func run() int {
	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config")
	tickers := flag.String("tickers", "", "comma-separated tickers, overrides config")
	window := flag.Int("window", 0, "moving average window, overrides config")
	sourceURL := flag.String("url", "", "feed URL, overrides config")
	out := flag.String("out", "", "output HTML path, overrides config")
	flag.Parse()

	_ = godotenv.Load() // best-effort

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.LogLevel)

	override := config.Pipeline{
		Tickers:    config.SplitTickers(*tickers),
		Window:     *window,
		SourceURL:  *sourceURL,
		OutputPath: *out,
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "window" {
			override.WindowSet = true
		}
	})
	cfg.Pipeline = cfg.Pipeline.Merge(override)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}

	fetcher, err := collector.NewHTTPFetcher(cfg.Pipeline.FetchTimeout(), cfg.Proxy)
	if err != nil {
		logger.Fatal().Err(err).Msg("init fetcher")
	}
	assembler := report.NewAssembler(report.NewChartRenderer(), logger)
	assembler.Title = cfg.Report.Title
	assembler.Concurrency = cfg.Pipeline.Concurrency
	p := pipeline.New(fetcher, assembler, logger)
	p.Concurrency = cfg.Pipeline.Concurrency

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
			defer sr.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctrl := control.NewController(p, fetcher, rec, cfg.Pipeline, logger)
	st, err := ctrl.Trigger(ctx, model.TriggerManual, config.Pipeline{})
	if err != nil {
		logger.Error().Err(err).Msg("run")
		return 1
	}
	if st.State != model.RunSucceeded {
		logger.Error().Str("kind", st.ErrorKind).Str("error", st.Error).Msg("no report produced")
		return 1
	}
	logger.Info().
		Str("output", st.OutputPath).
		Strs("found", st.Found).
		Strs("missing", st.Missing).
		Msg("report ready")
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
