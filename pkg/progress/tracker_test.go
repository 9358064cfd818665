package progress

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateResourceCount(t *testing.T) {
	tracker := NewTracker("", time.Second, nil)

	tracker.UpdateResourceCount("users", ResourceDelta{Processed: IntPtr(5)})

	stats := tracker.Stats()
	count := stats.Resources["users"]
	if count.Total != 0 || count.Processed != 5 || count.Filtered != 0 || count.Errors != 0 {
		t.Errorf("First touch should default unset fields to 0, got %+v", count)
	}

	tracker.UpdateResourceCount("users", ResourceDelta{Errors: IntPtr(2)})

	count = tracker.Stats().Resources["users"]
	if count.Processed != 5 {
		t.Errorf("Merge must preserve processed=5, got %d", count.Processed)
	}
	if count.Errors != 2 {
		t.Errorf("Expected errors=2, got %d", count.Errors)
	}
}

func TestUpdateStatsPartial(t *testing.T) {
	tracker := NewTracker("", time.Second, nil)

	tracker.UpdateStats(StatsUpdate{TotalSteps: IntPtr(10)})
	tracker.UpdateStats(StatsUpdate{CompletedSteps: IntPtr(3)})

	stats := tracker.Stats()
	if stats.TotalSteps != 10 {
		t.Errorf("Partial update must preserve total_steps=10, got %d", stats.TotalSteps)
	}
	if stats.CompletedSteps != 3 {
		t.Errorf("Expected completed_steps=3, got %d", stats.CompletedSteps)
	}
	if stats.LastUpdate.IsZero() {
		t.Error("Expected LastUpdate to be stamped")
	}
}

func TestStatsSnapshotIsIndependent(t *testing.T) {
	tracker := NewTracker("", time.Second, nil)
	tracker.UpdateResourceCount("users", ResourceDelta{Processed: IntPtr(5)})

	stats := tracker.Stats()
	stats.Resources["users"] = ResourceCount{Processed: 999}
	stats.Resources["injected"] = ResourceCount{Total: 1}

	fresh := tracker.Stats()
	if fresh.Resources["users"].Processed != 5 {
		t.Error("Mutating a returned snapshot changed internal state")
	}
	if _, ok := fresh.Resources["injected"]; ok {
		t.Error("Injected key leaked into internal state")
	}
}

func TestStateSnapshotIsIndependent(t *testing.T) {
	tracker := NewTracker("", time.Second, nil)
	tracker.UpdateState(map[string]any{
		"current_step": "issues",
		"nested":       map[string]any{"cursor": "abc"},
	})

	state := tracker.State()
	state["current_step"] = "mutated"
	if nested, ok := state["nested"].(map[string]any); ok {
		nested["cursor"] = "mutated"
	}

	fresh := tracker.State()
	if fresh["current_step"] != "issues" {
		t.Error("Top-level mutation leaked into internal state")
	}
	if nested, ok := fresh["nested"].(map[string]any); !ok || nested["cursor"] != "abc" {
		t.Error("Nested mutation leaked into internal state")
	}
}

func TestStateMergeIsPerKey(t *testing.T) {
	tracker := NewTracker("", time.Second, nil)
	tracker.UpdateState(map[string]any{"a": 1, "b": 2})
	tracker.UpdateState(map[string]any{"b": 3})

	state := tracker.State()
	if state["a"] != float64(1) && state["a"] != 1 {
		t.Errorf("Untouched key lost: %v", state["a"])
	}
	if state["b"] != float64(3) && state["b"] != 3 {
		t.Errorf("Expected b=3, got %v", state["b"])
	}
}

func TestFlushWritesSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tracker := NewTracker(path, 10*time.Millisecond, nil)

	tracker.UpdateResourceCount("issues", ResourceDelta{Processed: IntPtr(7)})
	tracker.Start()
	defer tracker.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Snapshot file never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("Snapshot not parseable: %v", err)
	}
	if snapshot.Stats.Resources["issues"].Processed != 7 {
		t.Errorf("Snapshot missing counts: %+v", snapshot.Stats.Resources)
	}
	if snapshot.Timestamp.IsZero() {
		t.Error("Expected snapshot timestamp")
	}
}

func TestStopFlushesFinalSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tracker := NewTracker(path, time.Hour, nil) // interval too long to tick

	tracker.Start()
	tracker.UpdateResourceCount("issues", ResourceDelta{Processed: IntPtr(1)})
	tracker.Stop()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected final snapshot on stop: %v", err)
	}

	// Stop again is a no-op
	tracker.Stop()
}

// panicRenderer always panics, failingRenderer always errors
type panicRenderer struct{}

func (panicRenderer) Render(Snapshot) error  { panic("display exploded") }
func (panicRenderer) Summary(Snapshot) error { panic("summary exploded") }

type failingRenderer struct{ renders int }

func (r *failingRenderer) Render(Snapshot) error {
	r.renders++
	return errors.New("render failed")
}
func (r *failingRenderer) Summary(Snapshot) error { return errors.New("summary failed") }

func TestRenderFailuresAreContained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")

	t.Run("Panic", func(t *testing.T) {
		tracker := NewTracker(path, 5*time.Millisecond, panicRenderer{})
		tracker.Start()
		time.Sleep(30 * time.Millisecond)
		tracker.Stop() // must not panic through
	})

	t.Run("Error", func(t *testing.T) {
		renderer := &failingRenderer{}
		tracker := NewTracker(path, 5*time.Millisecond, renderer)
		tracker.Start()
		time.Sleep(30 * time.Millisecond)
		tracker.Stop()
		if renderer.renders == 0 {
			t.Error("Expected renderer to have been invoked")
		}
	})
}

func TestRate(t *testing.T) {
	tracker := NewTracker("", time.Second, nil)
	if tracker.Rate() != 0 {
		t.Error("Expected zero rate before any work")
	}
	tracker.UpdateResourceCount("issues", ResourceDelta{Processed: IntPtr(10)})
	if tracker.Rate() <= 0 {
		t.Error("Expected positive rate after processing")
	}
}
