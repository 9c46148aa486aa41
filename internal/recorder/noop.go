package recorder

import "github.com/samarkanov/airflow-smolagents/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *model.RunStatus) error       { return nil }
func (n *NoopRecorder) LatestRun() (*model.RunStatus, error)     { return nil, nil }
func (n *NoopRecorder) RecordFingerprint(_ *Fingerprint) error   { return nil }
func (n *NoopRecorder) LastFingerprint(_ string) (string, error) { return "", nil }
func (n *NoopRecorder) Close() error                             { return nil }
