// Package control exposes run, status, validate and rescan operations over the
// report pipeline to external collaborators.
package control

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samarkanov/airflow-smolagents/internal/collector"
	"github.com/samarkanov/airflow-smolagents/internal/config"
	"github.com/samarkanov/airflow-smolagents/internal/model"
	"github.com/samarkanov/airflow-smolagents/internal/pipeline"
	"github.com/samarkanov/airflow-smolagents/internal/recorder"
)

// ErrRunInProgress is returned when a run is requested while another is in flight.
var ErrRunInProgress = errors.New("a run is already in progress")

// ValidationError lists why a proposed configuration cannot run.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, params pipeline.Params) (*pipeline.Result, error)
}

// Notifier is told about every finished run.
type Notifier interface {
	NotifyRun(ctx context.Context, status model.RunStatus) error
}

// RescanResult is the outcome of a rescan.
type RescanResult struct {
	Changed     bool   `json:"changed"`
	Fingerprint string `json:"fingerprint"`
	Size        int    `json:"size"`
	RunID       string `json:"run_id,omitempty"`
}

// Controller serializes pipeline runs and tracks their status.
type Controller struct {
	Runner   Runner
	Fetcher  collector.Fetcher
	Recorder recorder.Recorder
	Notifier Notifier
	Base     config.Pipeline
	Log      zerolog.Logger
	Now      func() time.Time

	mu      sync.Mutex
	current *model.RunStatus
	running bool
	wg      sync.WaitGroup
}

// NewController creates a Controller running base merged with each proposal.
func NewController(runner Runner, fetcher collector.Fetcher, rec recorder.Recorder, base config.Pipeline, log zerolog.Logger) *Controller {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Controller{
		Runner:   runner,
		Fetcher:  fetcher,
		Recorder: rec,
		Base:     base,
		Log:      log,
		Now:      time.Now,
	}
}

// Validate returns the problems with proposal merged over the base configuration.
func (c *Controller) Validate(proposal config.Pipeline) []string {
	return c.Base.Merge(proposal).Validate()
}

// Trigger runs the pipeline once and returns its final status.
func (c *Controller) Trigger(ctx context.Context, trigger model.TriggerType, proposal config.Pipeline) (model.RunStatus, error) {
	st, params, err := c.begin(trigger, proposal)
	if err != nil {
		return model.RunStatus{}, err
	}
	return c.execute(ctx, st, params), nil
}

// Start begins a run in the background and returns its pending status.
// ctx bounds the run, not the call.
func (c *Controller) Start(ctx context.Context, trigger model.TriggerType, proposal config.Pipeline) (model.RunStatus, error) {
	st, params, err := c.begin(trigger, proposal)
	if err != nil {
		return model.RunStatus{}, err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(ctx, st, params)
	}()
	return st, nil
}

// Wait blocks until every background run has finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Status returns the current or most recent run. ok is false when no run is known.
func (c *Controller) Status() (st model.RunStatus, ok bool, err error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != nil {
		return *current, true, nil
	}

	latest, err := c.Recorder.LatestRun()
	if err != nil {
		return model.RunStatus{}, false, fmt.Errorf("load latest run: %w", err)
	}
	if latest == nil {
		return model.RunStatus{}, false, nil
	}
	return *latest, true, nil
}

// Rescan fingerprints the source feed and starts a run when it has changed
// since the last recorded fingerprint.
func (c *Controller) Rescan(ctx context.Context) (RescanResult, error) {
	url := c.Base.SourceURL
	body, err := c.Fetcher.Fetch(ctx, url)
	if err != nil {
		return RescanResult{}, err
	}
	sum := sha256.Sum256(body)
	res := RescanResult{Fingerprint: hex.EncodeToString(sum[:]), Size: len(body)}

	last, err := c.Recorder.LastFingerprint(url)
	if err != nil {
		return res, fmt.Errorf("load fingerprint: %w", err)
	}
	if last == res.Fingerprint {
		c.Log.Debug().Str("fingerprint", res.Fingerprint).Msg("source unchanged")
		return res, nil
	}
	res.Changed = true

	st, err := c.Start(ctx, model.TriggerRescan, config.Pipeline{})
	if err != nil {
		return res, err
	}
	res.RunID = st.ID

	// Recorded only once a run is underway so a busy rescan is retried next time.
	if err := c.Recorder.RecordFingerprint(&recorder.Fingerprint{URL: url, Digest: res.Fingerprint, Size: res.Size}); err != nil {
		c.Log.Error().Err(err).Msg("record fingerprint")
	}
	c.Log.Info().Str("fingerprint", res.Fingerprint).Str("previous", last).Str("run_id", st.ID).Msg("source changed")
	return res, nil
}

func (c *Controller) begin(trigger model.TriggerType, proposal config.Pipeline) (model.RunStatus, pipeline.Params, error) {
	merged := c.Base.Merge(proposal)
	if problems := merged.Validate(); len(problems) > 0 {
		return model.RunStatus{}, pipeline.Params{}, &ValidationError{Problems: problems}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return model.RunStatus{}, pipeline.Params{}, ErrRunInProgress
	}
	c.running = true

	st := model.RunStatus{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		State:     model.RunPending,
		StartedAt: c.Now().UTC(),
		Tickers:   merged.Tickers,
		Window:    merged.Window,
		SourceURL: merged.SourceURL,
	}
	c.current = &st
	params := pipeline.Params{
		Tickers:    merged.Tickers,
		Window:     merged.Window,
		SourceURL:  merged.SourceURL,
		OutputPath: merged.OutputPath,
	}
	return st, params, nil
}

func (c *Controller) execute(ctx context.Context, st model.RunStatus, params pipeline.Params) model.RunStatus {
	log := c.Log.With().Str("run_id", st.ID).Str("trigger", string(st.Trigger)).Logger()

	st.State = model.RunRunning
	c.publish(st, false)
	log.Info().Strs("tickers", st.Tickers).Msg("run started")

	res, err := c.Runner.Run(ctx, params)
	st.FinishedAt = c.Now().UTC()
	if err != nil {
		st.State = model.RunFailed
		st.ErrorKind = pipeline.Classify(err)
		st.Error = err.Error()
		log.Warn().Str("kind", st.ErrorKind).Err(err).Msg("run failed")
	} else {
		st.State = model.RunSucceeded
		st.Found = res.Found
		st.Missing = res.Missing
		st.RowsFetched = res.RowsFetched
		st.RowsCleaned = res.RowsCleaned
		st.OutputPath = res.OutputPath
		log.Info().Str("output", st.OutputPath).Bool("partial", st.Partial()).Msg("run finished")
	}

	c.publish(st, true)

	if c.Notifier != nil {
		if err := c.Notifier.NotifyRun(context.WithoutCancel(ctx), st); err != nil {
			log.Error().Err(err).Msg("notify run")
		}
	}
	return st
}

// publish makes st the current status and persists it. finished releases
// the run slot in the same critical section.
func (c *Controller) publish(st model.RunStatus, finished bool) {
	c.mu.Lock()
	c.current = &st
	if finished {
		c.running = false
	}
	c.mu.Unlock()
	if err := c.Recorder.RecordRun(&st); err != nil {
		c.Log.Error().Err(err).Str("run_id", st.ID).Msg("record run")
	}
}
