package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/engine"
	"github.com/IshaanNene/gleaner/internal/progress"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Theme holds the colours of the terminal summaries.
type Theme struct {
	Title   lipgloss.Color
	Success lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Title:   lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Warn:    lipgloss.Color("#FFAF00"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
}

func (t Theme) title() lipgloss.Style   { return lipgloss.NewStyle().Foreground(t.Title).Bold(true) }
func (t Theme) success() lipgloss.Style { return lipgloss.NewStyle().Foreground(t.Success).Bold(true) }
func (t Theme) warn() lipgloss.Style    { return lipgloss.NewStyle().Foreground(t.Warn).Bold(true) }
func (t Theme) failure() lipgloss.Style { return lipgloss.NewStyle().Foreground(t.Error) }
func (t Theme) hint() lipgloss.Style    { return lipgloss.NewStyle().Foreground(t.Hint).Italic(true) }

var labelStyle = lipgloss.NewStyle().Width(16)

func row(label string, value any) string {
	return "  " + labelStyle.Render(label) + fmt.Sprint(value) + "\n"
}

// printSummary renders the end-of-run summary.
func printSummary(w io.Writer, s *engine.Summary, cfg *config.Config) {
	t := defaultTheme

	var out string
	switch {
	case s.Interrupted:
		out += t.warn().Render("■ Run interrupted") + "\n\n"
	case s.CapReached:
		out += t.success().Render(fmt.Sprintf("✓ Relevant cap of %d reached", cfg.Engine.MaxRelevant)) + "\n\n"
	default:
		out += t.success().Render("✓ Run complete") + "\n\n"
	}

	out += row("Enumerated:", s.Enumerated)
	out += row("Resumed:", s.Resumed)
	out += row("Relevant:", s.Relevant)
	out += row("Not relevant:", s.NotRelevant)
	out += row("Skipped:", s.Skipped)
	if s.Failed > 0 {
		out += "  " + labelStyle.Render("Failed:") + t.failure().Render(fmt.Sprint(s.Failed)) + "\n"
	} else {
		out += row("Failed:", 0)
	}
	if s.Pending+s.NotAttempted > 0 {
		out += row("Remaining:", s.Pending+s.NotAttempted)
	}
	out += row("Fetches:", fmt.Sprintf("%d (%d retries, %s)", s.Fetches, s.Retries, humanBytes(s.Bytes)))
	out += row("Written:", fmt.Sprintf("%d records to %s", s.Written, cfg.Output.Path))
	out += row("Elapsed:", s.Elapsed.Round(time.Millisecond))

	if s.Interrupted {
		out += "\n" + t.hint().Render("Progress is saved. Run the same command again to resume.") + "\n"
	}
	fmt.Fprint(w, out)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

var recentFailures int

// statusCmd creates the "status" subcommand.
func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the contents of the progress store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			logger, closeLog, err := config.SetupLogger(cfg.Logging, verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := context.Background()
			store, err := progress.New(ctx, cfg, "", logger)
			if err != nil {
				return fmt.Errorf("open progress store: %w", err)
			}
			defer store.Close()
			if err := store.Load(ctx); err != nil {
				return fmt.Errorf("load progress: %w", err)
			}

			printStatus(os.Stdout, store.All(), recentFailures)
			return nil
		},
	}
	cmd.Flags().IntVar(&recentFailures, "failures", 10, "number of recent failures to list")
	return cmd
}

// printStatus renders store counts and the most recent failures.
func printStatus(w io.Writer, entries []types.ProgressEntry, limit int) {
	t := defaultTheme
	c := progress.Count(entries)

	out := t.title().Render("Progress") + "\n\n"
	out += row("Entries:", c.Total)
	out += row("Done:", c.Done)
	out += row("Relevant:", c.Relevant)
	out += row("Not relevant:", c.Done-c.Relevant)
	out += row("Failed:", c.Failed)
	out += row("Skipped:", c.Skipped)
	out += row("Pending:", c.Pending)

	var failed []types.ProgressEntry
	for _, e := range entries {
		if e.Failed() {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 && limit > 0 {
		if len(failed) > limit {
			failed = failed[len(failed)-limit:]
		}
		out += "\n" + t.title().Render("Recent failures") + "\n\n"
		for _, e := range failed {
			out += "  " + e.ID + "\n    " + t.failure().Render(e.LastError) + "\n"
		}
	}
	fmt.Fprint(w, out)
}
