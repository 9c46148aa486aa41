package recorder

import "github.com/samarkanov/airflow-smolagents/internal/model"

// Fingerprint identifies one observed version of the source feed.
type Fingerprint struct {
	URL    string
	Digest string
	Size   int
}

// Recorder persists run history and source fingerprints.
type Recorder interface {
	// RecordRun inserts or replaces the run with the same ID.
	RecordRun(status *model.RunStatus) error
	// LatestRun returns the most recently started run, or nil when none exists.
	LatestRun() (*model.RunStatus, error)
	RecordFingerprint(fp *Fingerprint) error
	// LastFingerprint returns the latest digest recorded for url, or "" when none exists.
	LastFingerprint(url string) (string, error)
	Close() error
}
