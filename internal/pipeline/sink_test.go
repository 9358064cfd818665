package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"glexport/pkg/checkpoint"
	"glexport/pkg/lock"
	"glexport/pkg/output"
	"glexport/pkg/progress"
)

func testSink(t *testing.T) (*Sink, string, *progress.Tracker, *checkpoint.Store, *checkpoint.Document) {
	t.Helper()
	root := t.TempDir()
	resolver := output.NewResolver(root, output.NamingLowercase)
	flock := lock.New(lock.Options{RetryDelay: 5 * time.Millisecond, MaxRetries: 3})
	writer := output.NewWriter(resolver, flock, output.WriterOptions{})
	tracker := progress.NewTracker("", time.Hour, nil)
	store := checkpoint.NewStore(filepath.Join(root, ".glexport", "checkpoint.json"))
	doc := store.Load()
	return NewSink(writer, tracker, store, doc, 2), root, tracker, store, doc
}

func run(t *testing.T, sink *Sink, writes []WriteRequest, events []ProgressEvent) {
	t.Helper()
	writeCh := make(chan WriteRequest, len(writes))
	eventCh := make(chan ProgressEvent, len(events))
	for _, w := range writes {
		writeCh <- w
	}
	for _, e := range events {
		eventCh <- e
	}
	close(writeCh)
	close(eventCh)

	if err := sink.Run(context.Background(), writeCh, eventCh); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestSinkPersistsWrites(t *testing.T) {
	sink, root, tracker, _, _ := testSink(t)

	run(t, sink, []WriteRequest{
		{
			Hierarchy:    []string{"group", "project"},
			ResourceType: "issues",
			Records:      []interface{}{map[string]interface{}{"id": 1}, map[string]interface{}{"id": 2}},
			Append:       true,
		},
		{
			Hierarchy:    []string{"group"},
			ResourceType: "members",
			Records:      []interface{}{map[string]interface{}{"id": 3}},
			Append:       true,
		},
	}, nil)

	if _, err := os.Stat(filepath.Join(root, "group", "project", "issues.jsonl")); err != nil {
		t.Errorf("Expected issues file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "group", "members.jsonl")); err != nil {
		t.Errorf("Expected members file: %v", err)
	}

	stats := tracker.Stats()
	if stats.Resources["issues"].Processed != 2 {
		t.Errorf("Expected 2 issues processed, got %d", stats.Resources["issues"].Processed)
	}
	if stats.Resources["members"].Processed != 1 {
		t.Errorf("Expected 1 member processed, got %d", stats.Resources["members"].Processed)
	}
}

func TestSinkSkipsCompletedSteps(t *testing.T) {
	sink, root, tracker, _, doc := testSink(t)
	doc.SetStep("group/project/issues", checkpoint.StepState{Done: true})

	run(t, sink, []WriteRequest{
		{
			Hierarchy:    []string{"group", "project"},
			ResourceType: "issues",
			Records:      []interface{}{map[string]interface{}{"id": 1}},
			Append:       true,
			Step:         "group/project/issues",
		},
	}, nil)

	if _, err := os.Stat(filepath.Join(root, "group", "project", "issues.jsonl")); !os.IsNotExist(err) {
		t.Error("Expected completed step to be skipped")
	}
	if tracker.Stats().Resources["issues"].Filtered != 1 {
		t.Error("Expected skipped records to be counted as filtered")
	}
}

func TestSinkRecordsProgressEvents(t *testing.T) {
	sink, _, tracker, store, doc := testSink(t)

	run(t, sink, nil, []ProgressEvent{
		{Step: "group/project/issues", Completed: 50, Total: 100, Cursor: "page-2"},
		{Step: "group/project/issues", Completed: 100, Done: true},
	})

	state := doc.Step("group/project/issues")
	if state.Completed != 100 {
		t.Errorf("Expected completed=100, got %d", state.Completed)
	}
	if state.Total != 100 {
		t.Errorf("Expected total to survive the second event, got %d", state.Total)
	}
	if state.Cursor != "page-2" {
		t.Errorf("Expected cursor to survive the second event, got %q", state.Cursor)
	}
	if !state.Done {
		t.Error("Expected step marked done")
	}

	// Done events persist the checkpoint
	if !store.Exists() {
		t.Error("Expected checkpoint file after a done event")
	}
	reloaded := store.Load()
	if !reloaded.IsDone("group/project/issues") {
		t.Error("Expected done flag to round-trip through the store")
	}

	if tracker.Stats().CompletedSteps != 1 {
		t.Errorf("Expected 1 completed step, got %d", tracker.Stats().CompletedSteps)
	}
}

func TestSinkSavesCheckpointOnExit(t *testing.T) {
	sink, _, _, store, doc := testSink(t)
	doc.SetStep("pending", checkpoint.StepState{Completed: 3})

	run(t, sink, nil, nil)

	if !store.Exists() {
		t.Fatal("Expected checkpoint saved on exit")
	}
	if store.Load().Step("pending").Completed != 3 {
		t.Error("Expected in-memory state persisted on exit")
	}
}

func TestSinkContextCancellation(t *testing.T) {
	sink, _, _, store, _ := testSink(t)

	ctx, cancel := context.WithCancel(context.Background())
	writes := make(chan WriteRequest)
	events := make(chan ProgressEvent)

	done := make(chan error, 1)
	go func() {
		done <- sink.Run(ctx, writes, events)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}

	// Even a cancelled run persists what it has
	if !store.Exists() {
		t.Error("Expected checkpoint saved on cancellation")
	}
}
