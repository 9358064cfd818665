package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"glexport/pkg/logger"
)

// StepState holds resumable state for one job step
type StepState struct {
	Completed int            `json:"completed"`
	Total     int            `json:"total,omitempty"`
	Done      bool           `json:"done,omitempty"`
	Cursor    string         `json:"cursor,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Document is the resume state for a whole job run, keyed by step name.
// It is owned by a single process: loaded once at startup, mutated in
// memory, persisted periodically and on shutdown.
type Document struct {
	Steps       map[string]StepState `json:"steps"`
	CreatedAt   time.Time            `json:"created_at"`
	LastUpdated time.Time            `json:"last_updated"`
	Version     int                  `json:"version"`
}

// NewDocument returns an empty resume document
func NewDocument() *Document {
	now := time.Now()
	return &Document{
		Steps:     make(map[string]StepState),
		CreatedAt: now,
		Version:   1,
	}
}

// Step returns the state for a step, zero-valued if never touched
func (d *Document) Step(name string) StepState {
	return d.Steps[name]
}

// SetStep replaces the state for a step
func (d *Document) SetStep(name string, state StepState) {
	d.Steps[name] = state
}

// MarkDone flags a step as completed
func (d *Document) MarkDone(name string) {
	state := d.Steps[name]
	state.Done = true
	d.Steps[name] = state
}

// IsDone reports whether a step has been completed in a previous run
func (d *Document) IsDone(name string) bool {
	return d.Steps[name].Done
}

// Store persists and reloads the resume document
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a checkpoint store at the given path
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: logger.GetLogger(),
	}
}

// Path returns the checkpoint file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the resume document from disk. Corruption must never crash
// the job: an absent file yields an empty document with a warning, an
// unreadable or malformed file yields an empty document with an error log.
func (s *Store) Load() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WarnWithFields("no checkpoint found, starting fresh", map[string]interface{}{
				"path": s.path,
			})
		} else {
			s.logger.ErrorWithFields("checkpoint unreadable, starting fresh", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
		}
		return NewDocument()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.ErrorWithFields("checkpoint malformed, starting fresh", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return NewDocument()
	}
	if doc.Steps == nil {
		doc.Steps = make(map[string]StepState)
	}

	s.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"path":       s.path,
		"steps":      len(doc.Steps),
		"updated_at": doc.LastUpdated,
	})
	return &doc
}

// Save writes the full document atomically, stamping LastUpdated. The
// error is logged as well as returned; a lost checkpoint write degrades
// resumability but must not kill a running job, so callers are free to
// ignore it.
func (s *Store) Save(doc *Document) error {
	doc.LastUpdated = time.Now()

	if err := s.save(doc); err != nil {
		s.logger.ErrorWithFields("checkpoint save failed", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return err
	}

	s.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"path":  s.path,
		"steps": len(doc.Steps),
	})
	return nil
}

func (s *Store) save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Delete removes the checkpoint file. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	s.logger.Info("checkpoint deleted")
	return nil
}

// Backup copies the current checkpoint to a sibling .backup file
func (s *Store) Backup() error {
	if !s.Exists() {
		return nil
	}

	src, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.path + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	s.logger.Debug("checkpoint backed up")
	return nil
}

// Info returns a human-readable summary of the stored checkpoint, or nil
// when none exists.
func (s *Store) Info() map[string]any {
	if !s.Exists() {
		return nil
	}
	doc := s.Load()

	done := 0
	for _, state := range doc.Steps {
		if state.Done {
			done++
		}
	}
	return map[string]any{
		"path":         s.path,
		"steps":        len(doc.Steps),
		"done":         done,
		"created_at":   doc.CreatedAt,
		"last_updated": doc.LastUpdated,
		"age":          time.Since(doc.LastUpdated),
	}
}
