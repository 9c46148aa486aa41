package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

func openTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "data", "runs.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_Runs(t *testing.T) {
	r := openTestRecorder(t)

	latest, err := r.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	first := &model.RunStatus{
		ID: "run-1", Trigger: model.TriggerManual, State: model.RunRunning, StartedAt: started,
		Tickers: []string{"AAPL", "ZZZZ"}, Window: 30, SourceURL: "https://example.test/feed.txt",
	}
	require.NoError(t, r.RecordRun(first))

	latest, err = r.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.RunRunning, latest.State)
	assert.True(t, latest.FinishedAt.IsZero())
	assert.Nil(t, latest.Found)

	// same ID replaces the running row
	first.State = model.RunSucceeded
	first.FinishedAt = started.Add(3 * time.Second)
	first.Found = []string{"AAPL"}
	first.Missing = []string{"ZZZZ"}
	first.RowsFetched, first.RowsCleaned = 35, 35
	first.OutputPath = "out.html"
	require.NoError(t, r.RecordRun(first))

	latest, err = r.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, first, latest)
	assert.True(t, latest.Partial())

	second := &model.RunStatus{
		ID: "run-2", Trigger: model.TriggerScheduled, State: model.RunFailed,
		StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Second),
		Tickers: []string{"ZZZZ"}, Window: 30, ErrorKind: "no_match", Error: "no matching tickers",
	}
	require.NoError(t, r.RecordRun(second))

	latest, err = r.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	assert.Equal(t, "no_match", latest.ErrorKind)
}

func TestSQLiteRecorder_Fingerprints(t *testing.T) {
	r := openTestRecorder(t)

	got, err := r.LastFingerprint("https://example.test/a")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, r.RecordFingerprint(&Fingerprint{URL: "https://example.test/a", Digest: "d1", Size: 10}))
	require.NoError(t, r.RecordFingerprint(&Fingerprint{URL: "https://example.test/b", Digest: "other", Size: 3}))
	require.NoError(t, r.RecordFingerprint(&Fingerprint{URL: "https://example.test/a", Digest: "d2", Size: 12}))

	got, err = r.LastFingerprint("https://example.test/a")
	require.NoError(t, err)
	assert.Equal(t, "d2", got)
}

func TestSQLiteRecorder_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	r, err := NewSQLiteRecorder(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.RecordRun(&model.RunStatus{ID: "x", Trigger: model.TriggerAPI, State: model.RunSucceeded, StartedAt: time.Now()}))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()
	latest, err := r.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "x", latest.ID)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	require.NoError(t, r.RecordRun(&model.RunStatus{ID: "x"}))
	latest, err := r.LatestRun()
	assert.NoError(t, err)
	assert.Nil(t, latest)
}
