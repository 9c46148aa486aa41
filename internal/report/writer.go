package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// WriteFile renders rep and writes it to path atomically. It returns the
// number of bytes written.
func (a *Assembler) WriteFile(rep *model.Report, path string) (int, error) {
	doc, err := RenderHTML(rep)
	if err != nil {
		return 0, fmt.Errorf("render report: %w", err)
	}
	if err := WriteAtomic(path, doc); err != nil {
		return 0, err
	}
	a.Log.Info().Str("path", path).Int("bytes", len(doc)).Strs("tickers", rep.Tickers).Msg("report written")
	return len(doc), nil
}

// WriteAtomic writes data to a temporary file beside path and renames it into
// place, so readers see either the previous file or the complete new one.
func WriteAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
