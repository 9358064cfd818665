package checkpoint

import (
	"fmt"
)

func ExampleStore() {
	// Create a store for the run's checkpoint file
	store := NewStore("./export/.glexport/checkpoint.json")

	// Load never fails: absent or corrupt files yield a fresh document
	doc := store.Load()

	step := "group/project/issues"
	if doc.IsDone(step) {
		fmt.Println("issues already exported, skipping")
	} else {
		// Record pagination progress as batches land
		state := doc.Step(step)
		state.Completed += 100
		state.Cursor = "next_cursor_xyz"
		doc.SetStep(step, state)

		// Persist after the step finishes
		doc.MarkDone(step)
		if err := store.Save(doc); err != nil {
			fmt.Printf("checkpoint save failed: %v\n", err)
		}
	}

	// When the whole export completes, discard the resume state
	if err := store.Delete(); err != nil {
		fmt.Printf("failed to delete checkpoint: %v\n", err)
	}
}

func ExampleDocument_IsDone() {
	doc := NewDocument()
	doc.MarkDone("group/labels")

	if doc.IsDone("group/labels") {
		fmt.Println("labels already exported, skipping")
	}
	if !doc.IsDone("group/issues") {
		fmt.Println("issues not exported yet, will export")
	}

	// Output:
	// labels already exported, skipping
	// issues not exported yet, will export
}
