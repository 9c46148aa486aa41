package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/samarkanov/airflow-smolagents/internal/config"
	"github.com/samarkanov/airflow-smolagents/internal/control"
	"github.com/samarkanov/airflow-smolagents/internal/model"
	"github.com/samarkanov/airflow-smolagents/internal/notifier"
)

// Scheduler drives the controller from cron and chat commands.
type Scheduler struct {
	Cron       *cron.Cron
	Controller *control.Controller
	Ctx        context.Context
	Log        zerolog.Logger
}

// NewScheduler creates a new Scheduler. Cron specs include a seconds field.
func NewScheduler(ctx context.Context, ctrl *control.Controller, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Controller: ctrl,
		Ctx:        ctx,
		Log:        log,
	}
}

// RegisterAll registers the rescan task and, when runCron is set, a scheduled run.
func (s *Scheduler) RegisterAll(rescanCron, runCron string) error {
	if rescanCron != "" {
		if _, err := s.Cron.AddFunc(rescanCron, s.rescanTask); err != nil {
			return fmt.Errorf("register rescan task: %w", err)
		}
	}
	if runCron != "" {
		if _, err := s.Cron.AddFunc(runCron, s.runTask); err != nil {
			return fmt.Errorf("register run task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info().Int("tasks", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) rescanTask() {
	res, err := s.Controller.Rescan(s.Ctx)
	switch {
	case errors.Is(err, control.ErrRunInProgress):
		s.Log.Info().Msg("rescan: run in progress, will retry")
	case err != nil:
		s.Log.Error().Err(err).Msg("rescan")
	default:
		s.Log.Debug().Bool("changed", res.Changed).Str("fingerprint", res.Fingerprint).Msg("rescan done")
	}
}

func (s *Scheduler) runTask() {
	st, err := s.Controller.Trigger(s.Ctx, model.TriggerScheduled, config.Pipeline{})
	switch {
	case errors.Is(err, control.ErrRunInProgress):
		s.Log.Info().Msg("scheduled run skipped: run in progress")
	case err != nil:
		s.Log.Error().Err(err).Msg("scheduled run")
	default:
		s.Log.Info().Str("run_id", st.ID).Str("state", string(st.State)).Msg("scheduled run finished")
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}

	switch fields[0] {
	case "/run":
		proposal, err := parseRunArgs(fields[1:])
		if err != nil {
			return "❌ " + err.Error() + "\n\n" + notifier.FormatHelp()
		}
		st, err := s.Controller.Start(s.Ctx, model.TriggerChat, proposal)
		var verr *control.ValidationError
		switch {
		case errors.As(err, &verr):
			return "❌ Invalid configuration:\n• " + strings.Join(verr.Problems, "\n• ")
		case err != nil:
			return "⏳ " + err.Error()
		}
		return fmt.Sprintf("▶️ Started run <code>%s</code> for %s (window %d)", st.ID, strings.Join(st.Tickers, ", "), st.Window)

	case "/status":
		st, ok, err := s.Controller.Status()
		switch {
		case err != nil:
			return "❌ " + err.Error()
		case !ok:
			return "No runs yet."
		}
		return notifier.FormatRunStatus(st)

	case "/rescan":
		res, err := s.Controller.Rescan(ctx)
		if err != nil && !errors.Is(err, control.ErrRunInProgress) {
			return "❌ rescan failed: " + err.Error()
		}
		if err != nil {
			return "⏳ Source changed but a run is in progress; it will be picked up on the next rescan."
		}
		return notifier.FormatRescan(res.Changed, res.Fingerprint, res.RunID)

	default:
		return notifier.FormatHelp()
	}
}

// parseRunArgs reads "/run [TICKER,...] [WINDOW]" arguments in either order.
func parseRunArgs(args []string) (config.Pipeline, error) {
	var p config.Pipeline
	for _, a := range args {
		if w, err := strconv.Atoi(a); err == nil {
			p.Window = w
			p.WindowSet = true
			if w <= 0 {
				return p, fmt.Errorf("window must be positive, got %d", w)
			}
			continue
		}
		if strings.ContainsAny(a, ".") {
			return p, fmt.Errorf("window must be an integer, got %q", a)
		}
		p.Tickers = append(p.Tickers, config.SplitTickers(a)...)
	}
	return p, nil
}
