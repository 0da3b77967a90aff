package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/stagehand/internal/migration/orchestrator"
	"github.com/imamik/stagehand/internal/migration/status"
)

// Status handles the status command.
func Status(ctx context.Context, configPath, toVersion, kubeconfig string, jsonOutput bool) error {
	cfg, orch, err := setup(configPath, toVersion, kubeconfig)
	if err != nil {
		return err
	}

	st, err := orch.Status(ctx, cfg.Migration.FromVersion, cfg.ToVersion)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printStatusJSON(os.Stdout, st)
	}
	_, err = io.WriteString(os.Stdout, formatStatus(st, isInteractiveTTY()))
	return err
}

// printStatusJSON outputs the run status as JSON.
func printStatusJSON(w io.Writer, st *orchestrator.RunStatus) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// formatStatus renders the run status for humans. Styling is applied only
// on interactive terminals.
func formatStatus(st *orchestrator.RunStatus, styled bool) string {
	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	rec := st.Record
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", style(titleStyle, fmt.Sprintf("Migration %s -> %s (run %s)", rec.FromVersion, rec.ToVersion, st.RunID)))
	fmt.Fprintf(&b, "  status:  %s\n", style(recordStyle(rec.Status), string(rec.Status)))
	if rec.Message != "" {
		fmt.Fprintf(&b, "  message: %s\n", rec.Message)
	}
	if rec.CancelRequested {
		fmt.Fprintf(&b, "  %s\n", style(failedStyle, "cancellation requested"))
	}
	fmt.Fprintf(&b, "  started: %s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  updated: %s\n", style(dimStyle, rec.UpdatedAt.Format(time.RFC3339)))

	b.WriteString(style(sectionStyle, "Stages"))
	b.WriteString("\n")
	if len(st.Jobs) == 0 {
		fmt.Fprintf(&b, "  %s\n", style(dimStyle, "no stage jobs found (cancelled or cleaned up)"))
	}
	for _, job := range st.Jobs {
		mark, s := jobMark(job.State)
		line := fmt.Sprintf("  %s %d. %-15s %s", mark, job.Ordinal, job.Stage, job.State)
		if job.Failed > 0 {
			line += fmt.Sprintf(" (%d failed pods)", job.Failed)
		}
		if job.Message != "" {
			line += ": " + job.Message
		}
		fmt.Fprintf(&b, "%s\n", style(s, line))
	}

	if len(st.Artifacts) > 0 {
		b.WriteString(style(sectionStyle, "Artifacts"))
		b.WriteString("\n")
		for _, key := range st.Artifacts {
			fmt.Fprintf(&b, "  %s\n", key)
		}
	}
	return b.String()
}

func recordStyle(s status.State) lipgloss.Style {
	switch {
	case s == status.StateCompleted:
		return readyStyle
	case s == status.StateFailed:
		return failedStyle
	case s == status.StatePending:
		return dimStyle
	}
	return activeStyle
}

func jobMark(state orchestrator.JobState) (string, lipgloss.Style) {
	switch state {
	case orchestrator.JobSucceeded:
		return checkMark, readyStyle
	case orchestrator.JobFailed:
		return crossMark, failedStyle
	case orchestrator.JobRunning:
		return spinner, activeStyle
	}
	return pending, dimStyle
}
