package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"glexport/pkg/progress"
)

const (
	barWidth  = 20
	barFull   = "━"
	barEmpty  = "─"
	lineWidth = 120
)

// ProgressRenderer draws a single updating progress line on stdout and a
// summary block when the run finishes. It implements progress.Renderer.
type ProgressRenderer struct {
	out     io.Writer
	enabled bool
}

// NewProgressRenderer builds a renderer that stays silent when stdout is
// not a terminal.
func NewProgressRenderer() *ProgressRenderer {
	return &ProgressRenderer{
		out:     os.Stdout,
		enabled: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// NewProgressRendererTo builds a renderer writing to out unconditionally
func NewProgressRendererTo(out io.Writer) *ProgressRenderer {
	return &ProgressRenderer{out: out, enabled: true}
}

// Render redraws the progress line for the given snapshot
func (r *ProgressRenderer) Render(snapshot progress.Snapshot) error {
	if !r.enabled {
		return nil
	}

	stats := snapshot.Stats
	elapsed := snapshot.Timestamp.Sub(stats.StartedAt)
	processed, errors := totals(stats)

	line := fmt.Sprintf("\r[%s] %d/%d steps • %s records • %s",
		bar(stats.CompletedSteps, stats.TotalSteps),
		stats.CompletedSteps,
		stats.TotalSteps,
		humanize.Comma(int64(processed)),
		elapsed.Round(time.Second),
	)
	if eta := eta(stats, elapsed); eta != "" {
		line += fmt.Sprintf(" • ETA %s", eta)
	}
	if errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", errors)))
	}

	_, err := fmt.Fprintf(r.out, "\r%s%s", strings.Repeat(" ", lineWidth), line)
	return err
}

// Summary prints the final block: total time, steps, and the per-resource
// processed/filtered/error breakdown.
func (r *ProgressRenderer) Summary(snapshot progress.Snapshot) error {
	if !r.enabled {
		return nil
	}

	stats := snapshot.Stats
	elapsed := snapshot.Timestamp.Sub(stats.StartedAt)
	processed, errors := totals(stats)

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, Green("export complete"))
	fmt.Fprintf(r.out, "  %s: %s\n", Cyan("elapsed"), elapsed.Round(time.Second))
	fmt.Fprintf(r.out, "  %s: %d/%d\n", Cyan("steps"), stats.CompletedSteps, stats.TotalSteps)
	fmt.Fprintf(r.out, "  %s: %s\n", Cyan("records"), humanize.Comma(int64(processed)))
	if elapsed.Minutes() > 0 {
		fmt.Fprintf(r.out, "  %s: %.1f/min\n", Cyan("rate"), float64(processed)/elapsed.Minutes())
	}

	types := make([]string, 0, len(stats.Resources))
	for resourceType := range stats.Resources {
		types = append(types, resourceType)
	}
	sort.Strings(types)
	for _, resourceType := range types {
		count := stats.Resources[resourceType]
		line := fmt.Sprintf("  %s: %d processed, %d filtered",
			Yellow(resourceType), count.Processed, count.Filtered)
		if count.Errors > 0 {
			line += ", " + Red(fmt.Sprintf("%d errors", count.Errors))
		}
		fmt.Fprintln(r.out, line)
	}
	if errors > 0 {
		fmt.Fprintln(r.out, Red(fmt.Sprintf("  %d errors total", errors)))
	}
	return nil
}

// bar renders a fixed-width progress bar
func bar(completed, total int) string {
	if total <= 0 {
		return strings.Repeat(barEmpty, barWidth)
	}
	ratio := float64(completed) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * barWidth)
	return strings.Repeat(barFull, filled) + strings.Repeat(barEmpty, barWidth-filled)
}

// eta estimates remaining time from the completed-step rate
func eta(stats progress.Stats, elapsed time.Duration) string {
	if stats.CompletedSteps == 0 || stats.TotalSteps <= stats.CompletedSteps {
		return ""
	}
	perStep := elapsed / time.Duration(stats.CompletedSteps)
	remaining := perStep * time.Duration(stats.TotalSteps-stats.CompletedSteps)
	return remaining.Round(time.Second).String()
}

// totals sums processed and error counts across resource types
func totals(stats progress.Stats) (processed, errors int) {
	for _, count := range stats.Resources {
		processed += count.Processed
		errors += count.Errors
	}
	return processed, errors
}
