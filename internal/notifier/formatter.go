package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

const timeFormat = "2006-01-02 15:04:05"

// FormatRunStatus formats a run for display.
func FormatRunStatus(st model.RunStatus) string {
	var b strings.Builder

	icon := "⏳"
	switch {
	case st.Partial():
		icon = "⚠️"
	case st.State == model.RunSucceeded:
		icon = "✅"
	case st.State == model.RunFailed:
		icon = "❌"
	}
	b.WriteString(fmt.Sprintf("%s <b>Moving average report</b> | %s\n\n", icon, st.State))

	b.WriteString(fmt.Sprintf("Run: <code>%s</code> (%s)\n", st.ID, st.Trigger))
	b.WriteString(fmt.Sprintf("Tickers: %s | window %d\n", strings.Join(st.Tickers, ", "), st.Window))
	b.WriteString(fmt.Sprintf("Started: %s UTC\n", st.StartedAt.UTC().Format(timeFormat)))
	if st.Done() {
		b.WriteString(fmt.Sprintf("Finished: %s UTC (%s)\n",
			st.FinishedAt.UTC().Format(timeFormat), st.FinishedAt.Sub(st.StartedAt).Round(time.Millisecond)))
	}

	switch st.State {
	case model.RunSucceeded:
		b.WriteString(fmt.Sprintf("Rows: %d fetched, %d kept\n", st.RowsFetched, st.RowsCleaned))
		b.WriteString(fmt.Sprintf("Report: %s\n", html.EscapeString(st.OutputPath)))
		if len(st.Missing) > 0 {
			b.WriteString(fmt.Sprintf("\nNot in feed: %s\n", strings.Join(st.Missing, ", ")))
		}
	case model.RunFailed:
		b.WriteString(fmt.Sprintf("\nError (%s): %s\n", st.ErrorKind, html.EscapeString(st.Error)))
	}
	return b.String()
}

// FormatRescan formats the outcome of a source rescan.
func FormatRescan(changed bool, fingerprint, runID string) string {
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	if !changed {
		return fmt.Sprintf("🔍 Source unchanged (<code>%s</code>)", short)
	}
	return fmt.Sprintf("🔄 Source changed (<code>%s</code>), started run <code>%s</code>", short, runID)
}

// FormatHelp lists the chat commands.
func FormatHelp() string {
	return "Available commands:\n• /run [TICKER,...] [WINDOW]\n• /status\n• /rescan"
}
