package checkpoint

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCheckpointStore(t *testing.T) {
	t.Run("SaveAndLoadRoundTrip", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

		doc := NewDocument()
		doc.SetStep("group/project/issues", StepState{
			Completed: 120,
			Total:     500,
			Cursor:    "page-3",
			Data:      map[string]any{"last_id": float64(991)},
		})
		doc.SetStep("group/project/labels", StepState{Completed: 12, Done: true})

		if err := store.Save(doc); err != nil {
			t.Fatalf("Failed to save checkpoint: %v", err)
		}

		loaded := store.Load()
		if !reflect.DeepEqual(loaded.Steps, doc.Steps) {
			t.Errorf("Round trip mismatch:\n got %#v\nwant %#v", loaded.Steps, doc.Steps)
		}
		if loaded.LastUpdated.IsZero() {
			t.Error("Expected LastUpdated to be stamped")
		}
	})

	t.Run("LoadMissingReturnsEmpty", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "missing.json"))

		doc := store.Load()
		if doc == nil {
			t.Fatal("Expected an empty document, got nil")
		}
		if len(doc.Steps) != 0 {
			t.Errorf("Expected no steps, got %d", len(doc.Steps))
		}
	})

	t.Run("LoadCorruptReturnsEmpty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "checkpoint.json")
		if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
			t.Fatalf("Failed to write corrupt file: %v", err)
		}

		store := NewStore(path)
		doc := store.Load()
		if doc == nil {
			t.Fatal("Corruption must not crash the load")
		}
		if len(doc.Steps) != 0 {
			t.Errorf("Expected an empty document, got %d steps", len(doc.Steps))
		}
	})

	t.Run("SaveIsIdempotent", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

		doc := NewDocument()
		doc.SetStep("users", StepState{Completed: 5})
		if err := store.Save(doc); err != nil {
			t.Fatalf("First save failed: %v", err)
		}
		if err := store.Save(doc); err != nil {
			t.Fatalf("Second save failed: %v", err)
		}

		loaded := store.Load()
		if !reflect.DeepEqual(loaded.Steps, doc.Steps) {
			t.Errorf("Repeated saves changed the document: %#v", loaded.Steps)
		}
	})

	t.Run("MarkDoneAndIsDone", func(t *testing.T) {
		doc := NewDocument()
		if doc.IsDone("issues") {
			t.Error("Untouched step should not be done")
		}
		doc.SetStep("issues", StepState{Completed: 7})
		doc.MarkDone("issues")
		if !doc.IsDone("issues") {
			t.Error("Expected step to be done")
		}
		if doc.Step("issues").Completed != 7 {
			t.Error("MarkDone must preserve other fields")
		}
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

		if store.Exists() {
			t.Error("Expected no checkpoint before save")
		}
		if err := store.Save(NewDocument()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if !store.Exists() {
			t.Error("Expected checkpoint after save")
		}
		if err := store.Delete(); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if store.Exists() {
			t.Error("Expected checkpoint gone after delete")
		}
		// Deleting again is not an error
		if err := store.Delete(); err != nil {
			t.Fatalf("Second delete failed: %v", err)
		}
	})

	t.Run("Backup", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "checkpoint.json")
		store := NewStore(path)

		doc := NewDocument()
		doc.SetStep("issues", StepState{Completed: 42})
		if err := store.Save(doc); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := store.Backup(); err != nil {
			t.Fatalf("Backup failed: %v", err)
		}
		if _, err := os.Stat(path + ".backup"); err != nil {
			t.Errorf("Backup file not created: %v", err)
		}
	})

	t.Run("Info", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
		if store.Info() != nil {
			t.Error("Expected nil info without a checkpoint")
		}

		doc := NewDocument()
		doc.SetStep("issues", StepState{Done: true})
		doc.SetStep("labels", StepState{Completed: 3})
		if err := store.Save(doc); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		info := store.Info()
		if info == nil {
			t.Fatal("Expected info after save")
		}
		if info["steps"] != 2 {
			t.Errorf("Expected 2 steps, got %v", info["steps"])
		}
		if info["done"] != 1 {
			t.Errorf("Expected 1 done step, got %v", info["done"])
		}
	})
}
