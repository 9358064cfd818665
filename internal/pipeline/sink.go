package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"glexport/pkg/checkpoint"
	errs "glexport/pkg/errors"
	"glexport/pkg/logger"
	"glexport/pkg/output"
	"glexport/pkg/progress"
)

// WriteRequest is one batch of records produced by the crawler for a
// hierarchy area and resource type.
type WriteRequest struct {
	Hierarchy    []string      `json:"hierarchy"`
	ResourceType string        `json:"resource_type"`
	Records      []interface{} `json:"records"`
	Append       bool          `json:"append"`
	// Step names the crawl step this batch belongs to, for resume state
	Step string `json:"step,omitempty"`
}

// ProgressEvent is a progress update produced by the crawler after a step
type ProgressEvent struct {
	Step      string `json:"step"`
	Completed int    `json:"completed"`
	Total     int    `json:"total,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	Done      bool   `json:"done,omitempty"`
}

// Sink consumes the crawler's write and progress streams and drives the
// durable output layer: records to resource files, progress into the
// tracker, resume state into the checkpoint store. Different resource
// types write concurrently to different files; ordering within one file
// comes from that file's lock.
type Sink struct {
	writer  *output.Writer
	tracker *progress.Tracker
	store   *checkpoint.Store
	doc     *checkpoint.Document
	workers int
	logger  logger.Logger
}

// NewSink builds a sink over the given writer, tracker, and checkpoint
// store. The document is the loaded resume state; completed steps in it
// are skipped.
func NewSink(writer *output.Writer, tracker *progress.Tracker, store *checkpoint.Store, doc *checkpoint.Document, workers int) *Sink {
	if workers <= 0 {
		workers = 1
	}
	return &Sink{
		writer:  writer,
		tracker: tracker,
		store:   store,
		doc:     doc,
		workers: workers,
		logger:  logger.GetLogger(),
	}
}

// ShouldSkip reports whether a step finished in a previous run
func (s *Sink) ShouldSkip(step string) bool {
	return s.doc != nil && s.doc.IsDone(step)
}

// Run drains both streams until they are closed or the context ends,
// then saves the checkpoint once more. Write failures are counted per
// resource type and logged; they do not stop the run, the crawler decides
// what to do with its own errors.
func (s *Sink) Run(ctx context.Context, writes <-chan WriteRequest, events <-chan ProgressEvent) error {
	group, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case req, ok := <-writes:
					if !ok {
						return nil
					}
					s.handleWrite(req)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	group.Go(func() error {
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				s.handleEvent(event)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	err := group.Wait()

	// Unconditional save on the way out, graceful or not
	if s.store != nil && s.doc != nil {
		_ = s.store.Save(s.doc)
	}
	return err
}

// handleWrite persists one batch and updates the per-type counters
func (s *Sink) handleWrite(req WriteRequest) {
	if req.Step != "" && s.ShouldSkip(req.Step) {
		s.tracker.UpdateResourceCount(req.ResourceType, progress.ResourceDelta{
			Filtered: progress.IntPtr(len(req.Records)),
		})
		return
	}

	start := time.Now()
	written, err := s.writer.WriteResource(req.Hierarchy, req.ResourceType, req.Records, req.Append)
	if err != nil {
		s.tracker.UpdateResourceCount(req.ResourceType, progress.ResourceDelta{
			Errors: progress.IntPtr(1),
		})
		fields := map[string]interface{}{
			"resource_type": req.ResourceType,
			"records":       len(req.Records),
			"error":         err.Error(),
		}
		if errs.IsContention(err) {
			s.logger.WarnWithFields("write skipped, lock contention", fields)
		} else {
			s.logger.ErrorWithFields("write failed", fields)
		}
		return
	}

	s.tracker.UpdateResourceCount(req.ResourceType, progress.ResourceDelta{
		Total:     progress.IntPtr(len(req.Records)),
		Processed: progress.IntPtr(written),
	})
	s.logger.DebugWithFields("batch persisted", map[string]interface{}{
		"resource_type": req.ResourceType,
		"records":       written,
		"duration":      time.Since(start),
	})
}

// handleEvent folds one progress event into the tracker and resume state
func (s *Sink) handleEvent(event ProgressEvent) {
	if s.doc != nil {
		state := s.doc.Step(event.Step)
		state.Completed = event.Completed
		if event.Total > 0 {
			state.Total = event.Total
		}
		if event.Cursor != "" {
			state.Cursor = event.Cursor
		}
		if event.Done {
			state.Done = true
		}
		s.doc.SetStep(event.Step, state)
	}

	s.tracker.UpdateState(map[string]any{
		"current_step": event.Step,
	})
	if event.Done {
		s.tracker.StepCompleted()
		// Persist resume state at step boundaries; losing one is only a
		// resumability regression, so the error is already logged inside
		if s.store != nil && s.doc != nil {
			_ = s.store.Save(s.doc)
		}
	}
}
