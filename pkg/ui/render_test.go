package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"glexport/pkg/progress"
)

func sampleSnapshot() progress.Snapshot {
	now := time.Now()
	return progress.Snapshot{
		State: map[string]any{"current_step": "issues"},
		Stats: progress.Stats{
			TotalSteps:     10,
			CompletedSteps: 4,
			StartedAt:      now.Add(-2 * time.Minute),
			LastUpdate:     now,
			Resources: map[string]progress.ResourceCount{
				"issues": {Total: 120, Processed: 100, Filtered: 15, Errors: 5},
				"labels": {Total: 30, Processed: 30},
			},
		},
		Timestamp: now,
	}
}

func TestRenderProgressLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewProgressRendererTo(&buf)

	if err := r.Render(sampleSnapshot()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "4/10 steps") {
		t.Errorf("Expected step counter in %q", out)
	}
	if !strings.Contains(out, "130 records") {
		t.Errorf("Expected record total in %q", out)
	}
	if !strings.Contains(out, "5 errors") {
		t.Errorf("Expected error count in %q", out)
	}
	if !strings.Contains(out, "ETA") {
		t.Errorf("Expected an ETA in %q", out)
	}
}

func TestSummaryBreakdown(t *testing.T) {
	var buf bytes.Buffer
	r := NewProgressRendererTo(&buf)

	if err := r.Summary(sampleSnapshot()); err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"export complete", "issues", "labels", "100 processed", "15 filtered", "5 errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in summary:\n%s", want, out)
		}
	}
}

func TestDisabledRendererIsSilent(t *testing.T) {
	r := &ProgressRenderer{enabled: false}
	if err := r.Render(sampleSnapshot()); err != nil {
		t.Errorf("Disabled render returned error: %v", err)
	}
	if err := r.Summary(sampleSnapshot()); err != nil {
		t.Errorf("Disabled summary returned error: %v", err)
	}
}

func TestBar(t *testing.T) {
	if got := bar(0, 0); !strings.Contains(got, barEmpty) || strings.Contains(got, barFull) {
		t.Errorf("Zero-total bar should be empty, got %q", got)
	}
	if got := bar(10, 10); strings.Contains(got, barEmpty) {
		t.Errorf("Full bar should have no empty cells, got %q", got)
	}
	if got := bar(15, 10); strings.Contains(got, barEmpty) {
		t.Errorf("Overfull bar must clamp, got %q", got)
	}
}
