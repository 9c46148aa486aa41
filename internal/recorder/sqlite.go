package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the status API read while a run is being recorded.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			trigger_type TEXT NOT NULL,
			state        TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER,
			tickers      TEXT,
			found        TEXT,
			missing      TEXT,
			window_size  INTEGER,
			source_url   TEXT,
			rows_fetched INTEGER,
			rows_cleaned INTEGER,
			output_path  TEXT,
			error_kind   TEXT,
			error        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS source_fingerprints (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			url       TEXT NOT NULL,
			digest    TEXT NOT NULL,
			size      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprints_url ON source_fingerprints(url, id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(st *model.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var finished null.Int
	if !st.FinishedAt.IsZero() {
		finished = null.IntFrom(st.FinishedAt.UnixMilli())
	}

	_, err := r.db.Exec(`INSERT OR REPLACE INTO runs
		(id, trigger_type, state, started_at, finished_at, tickers, found, missing,
		 window_size, source_url, rows_fetched, rows_cleaned, output_path, error_kind, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		st.ID, string(st.Trigger), string(st.State), st.StartedAt.UnixMilli(), finished,
		joinList(st.Tickers), joinList(st.Found), joinList(st.Missing),
		st.Window, st.SourceURL, st.RowsFetched, st.RowsCleaned,
		null.StringFrom(st.OutputPath), null.StringFrom(st.ErrorKind), null.StringFrom(st.Error),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", st.ID, err)
	}
	return nil
}

func (r *SQLiteRecorder) LatestRun() (*model.RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		st                      model.RunStatus
		trigger, state          string
		started                 int64
		finished                null.Int
		tickers, found, missing null.String
		outputPath, kind, msg   null.String
	)
	err := r.db.QueryRow(`SELECT id, trigger_type, state, started_at, finished_at, tickers, found, missing,
		window_size, source_url, rows_fetched, rows_cleaned, output_path, error_kind, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(
		&st.ID, &trigger, &state, &started, &finished, &tickers, &found, &missing,
		&st.Window, &st.SourceURL, &st.RowsFetched, &st.RowsCleaned, &outputPath, &kind, &msg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}

	st.Trigger = model.TriggerType(trigger)
	st.State = model.RunState(state)
	st.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		st.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	st.Tickers = splitList(tickers.String)
	st.Found = splitList(found.String)
	st.Missing = splitList(missing.String)
	st.OutputPath = outputPath.String
	st.ErrorKind = kind.String
	st.Error = msg.String
	return &st, nil
}

func (r *SQLiteRecorder) RecordFingerprint(fp *Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO source_fingerprints (timestamp, url, digest, size) VALUES (?,?,?,?)`,
		time.Now().Unix(), fp.URL, fp.Digest, fp.Size,
	)
	return err
}

func (r *SQLiteRecorder) LastFingerprint(url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var digest string
	err := r.db.QueryRow(`SELECT digest FROM source_fingerprints WHERE url = ? ORDER BY id DESC LIMIT 1`, url).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query fingerprint: %w", err)
	}
	return digest, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func joinList(v []string) null.String {
	if len(v) == 0 {
		return null.String{}
	}
	return null.StringFrom(strings.Join(v, ","))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
