package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"glexport/pkg/logger"
)

// ResourceCount tracks per-resource-type outcomes
type ResourceCount struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Filtered  int `json:"filtered"`
	Errors    int `json:"errors"`
}

// ResourceDelta is a typed partial update for one resource counter block.
// A nil field leaves the current value untouched; set fields are added to
// the running count.
type ResourceDelta struct {
	Total     *int
	Processed *int
	Filtered  *int
	Errors    *int
}

// Stats are the running job statistics
type Stats struct {
	TotalSteps     int                      `json:"total_steps"`
	CompletedSteps int                      `json:"completed_steps"`
	StartedAt      time.Time                `json:"started_at"`
	LastUpdate     time.Time                `json:"last_update"`
	Resources      map[string]ResourceCount `json:"resources"`
}

// StatsUpdate is a typed partial update for Stats. Nil fields are left
// untouched, preserving the merge-preserves-unset contract in the types.
type StatsUpdate struct {
	TotalSteps     *int
	CompletedSteps *int
}

// Snapshot is what the periodic flush serializes to the progress file
type Snapshot struct {
	State     map[string]any `json:"state"`
	Stats     Stats          `json:"stats"`
	Timestamp time.Time      `json:"timestamp"`
}

// Renderer displays a snapshot. Implementations must tolerate being
// called from the flush goroutine; failures are contained by the tracker.
type Renderer interface {
	Render(snapshot Snapshot) error
	Summary(snapshot Snapshot) error
}

// Tracker keeps in-memory running statistics and periodically flushes a
// snapshot document to disk. Reads hand out deep copies only, so external
// renderers can never corrupt internal state.
type Tracker struct {
	mu    sync.Mutex
	state map[string]any
	stats Stats

	snapshotPath string
	interval     time.Duration
	renderer     Renderer
	logger       logger.Logger

	done    chan struct{}
	stopped sync.WaitGroup
	running bool
}

// NewTracker creates a tracker flushing to snapshotPath every interval.
// A nil renderer disables terminal output.
func NewTracker(snapshotPath string, interval time.Duration, renderer Renderer) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Tracker{
		state:        make(map[string]any),
		stats:        Stats{StartedAt: time.Now(), Resources: make(map[string]ResourceCount)},
		snapshotPath: snapshotPath,
		interval:     interval,
		renderer:     renderer,
		logger:       logger.GetLogger(),
	}
}

// UpdateState merges partial into the live job state, key by key
func (t *Tracker) UpdateState(partial map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range partial {
		t.state[k] = v
	}
}

// UpdateStats merges a typed partial update into the running statistics,
// stamping LastUpdate.
func (t *Tracker) UpdateStats(update StatsUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if update.TotalSteps != nil {
		t.stats.TotalSteps = *update.TotalSteps
	}
	if update.CompletedSteps != nil {
		t.stats.CompletedSteps = *update.CompletedSteps
	}
	t.stats.LastUpdate = time.Now()
}

// StepCompleted bumps the completed step counter by one
func (t *Tracker) StepCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CompletedSteps++
	t.stats.LastUpdate = time.Now()
}

// UpdateResourceCount merges a delta into one resource type's counters.
// A type never touched before starts from all-zero fields.
func (t *Tracker) UpdateResourceCount(resourceType string, delta ResourceDelta) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.stats.Resources[resourceType]
	if delta.Total != nil {
		count.Total += *delta.Total
	}
	if delta.Processed != nil {
		count.Processed += *delta.Processed
	}
	if delta.Filtered != nil {
		count.Filtered += *delta.Filtered
	}
	if delta.Errors != nil {
		count.Errors += *delta.Errors
	}
	t.stats.Resources[resourceType] = count
	t.stats.LastUpdate = time.Now()
}

// Stats returns a deep, independent copy of the running statistics.
// Mutating the returned value never affects the tracker.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyStats()
}

// State returns a deep, independent copy of the live job state
func (t *Tracker) State() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return deepCopyState(t.state)
}

// Rate returns processed records per minute across all resource types
func (t *Tracker) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := time.Since(t.stats.StartedAt).Minutes()
	if elapsed == 0 {
		return 0
	}
	processed := 0
	for _, count := range t.stats.Resources {
		processed += count.Processed
	}
	return float64(processed) / elapsed
}

// Start begins the periodic flush loop. Each tick writes the snapshot
// file and, when a renderer is configured, redraws the terminal view.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.done = make(chan struct{})
	t.mu.Unlock()

	t.stopped.Add(1)
	go func() {
		defer t.stopped.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.tick()
			case <-t.done:
				return
			}
		}
	}()
}

// Stop cancels the flush loop, writes a final snapshot, and prints the
// closing summary when rendering is enabled.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	t.mu.Unlock()

	t.stopped.Wait()
	snapshot := t.snapshot()
	t.flush(snapshot)
	if t.renderer != nil {
		t.render(func() error { return t.renderer.Summary(snapshot) })
	}
}

// tick runs one flush cycle
func (t *Tracker) tick() {
	snapshot := t.snapshot()
	t.flush(snapshot)
	if t.renderer != nil {
		t.render(func() error { return t.renderer.Render(snapshot) })
	}
}

// snapshot builds an independent copy of the current state and stats
func (t *Tracker) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:     deepCopyState(t.state),
		Stats:     t.copyStats(),
		Timestamp: time.Now(),
	}
}

// flush overwrites the snapshot file. Failures are logged and swallowed:
// losing a progress write must not abort the crawl.
func (t *Tracker) flush(snapshot Snapshot) {
	if t.snapshotPath == "" {
		return
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.logger.WarnWithFields("progress snapshot encode failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := os.MkdirAll(filepath.Dir(t.snapshotPath), 0755); err != nil {
		t.logger.WarnWithFields("progress snapshot flush failed", map[string]interface{}{
			"path":  t.snapshotPath,
			"error": err.Error(),
		})
		return
	}

	tempPath := t.snapshotPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err == nil {
		err = os.Rename(tempPath, t.snapshotPath)
	}
	if err != nil {
		os.Remove(tempPath)
		t.logger.WarnWithFields("progress snapshot flush failed", map[string]interface{}{
			"path":  t.snapshotPath,
			"error": err.Error(),
		})
	}
}

// render runs a renderer call, containing both errors and panics. A
// display glitch is logged at debug level and never propagated.
func (t *Tracker) render(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.DebugWithFields("progress render panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
		}
	}()
	if err := fn(); err != nil {
		t.logger.DebugWithFields("progress render failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// copyStats duplicates the stats including the resource map. Caller must
// hold the mutex.
func (t *Tracker) copyStats() Stats {
	stats := t.stats
	stats.Resources = make(map[string]ResourceCount, len(t.stats.Resources))
	for k, v := range t.stats.Resources {
		stats.Resources[k] = v
	}
	return stats
}

// deepCopyState duplicates arbitrary state through a JSON round trip, so
// nested maps and slices are detached too.
func deepCopyState(state map[string]any) map[string]any {
	if len(state) == 0 {
		return make(map[string]any)
	}
	data, err := json.Marshal(state)
	if err != nil {
		// Unserializable values fall back to a shallow copy
		clone := make(map[string]any, len(state))
		for k, v := range state {
			clone[k] = v
		}
		return clone
	}
	clone := make(map[string]any, len(state))
	if err := json.Unmarshal(data, &clone); err != nil {
		return make(map[string]any)
	}
	return clone
}

// IntPtr is a convenience for building typed partial updates
func IntPtr(n int) *int {
	return &n
}
