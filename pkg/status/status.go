// Package status holds the progress of the current run and the summaries of
// recent ones. Writers hold the lock for a single update, readers get copies.
package status

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/math"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
)

// DefaultRecentLimit is the number of result summaries kept in memory
const DefaultRecentLimit = 50

// Snapshot is a point in time view of the run progress
type Snapshot struct {
	IsRunning        bool           `json:"is_running"`
	State            types.RunState `json:"state"`
	RunID            string         `json:"run_id,omitempty"`
	ScenarioName     string         `json:"scenario_name,omitempty"`
	CurrentPhase     string         `json:"current_phase,omitempty"`
	PhaseIndex       int            `json:"phase_index"`
	ActiveInjections []string       `json:"active_injections"`
	ProgressPercent  float64        `json:"progress_percent"`
	Elapsed          time.Duration  `json:"-"`
	Total            time.Duration  `json:"-"`
	StartedAt        time.Time      `json:"started_at,omitempty"`
	Err              string         `json:"error,omitempty"`
}

// MarshalJSON reports elapsed and total in seconds
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		ElapsedSeconds float64 `json:"elapsed_seconds"`
		TotalSeconds   float64 `json:"total_seconds"`
	}{plain(s), s.Elapsed.Seconds(), s.Total.Seconds()})
}

// Tracker is the shared status cell of one runner
type Tracker struct {
	mu     sync.RWMutex
	status Snapshot
	recent []types.ResultSummary
	limit  int
}

// NewTracker returns an idle tracker keeping at most limit recent results
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Tracker{status: Snapshot{State: types.StateIdle}, limit: limit}
}

// Snapshot returns a copy of the current status
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	s.ActiveInjections = append([]string{}, t.status.ActiveInjections...)
	return s
}

// Begin marks a new run as started
func (t *Tracker) Begin(runID, scenario string, total time.Duration, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = Snapshot{
		IsRunning:    true,
		State:        types.StateRunning,
		RunID:        runID,
		ScenarioName: scenario,
		Total:        total,
		StartedAt:    startedAt,
	}
}

// Progress records the phase in flight and the elapsed run time
func (t *Tracker) Progress(phaseIndex int, phase string, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.PhaseIndex = phaseIndex
	t.status.CurrentPhase = phase
	t.status.Elapsed = elapsed
	t.status.ProgressPercent = math.Percentage(elapsed, t.status.Total)
}

// Tick refreshes the elapsed run time only
func (t *Tracker) Tick(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.IsRunning {
		return
	}
	t.status.Elapsed = elapsed
	t.status.ProgressPercent = math.Percentage(elapsed, t.status.Total)
}

// SetActive replaces the list of live injections
func (t *Tracker) SetActive(active []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.ActiveInjections = append([]string{}, active...)
}

// Finish records the terminal state of the run
func (t *Tracker) Finish(state types.RunState, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.IsRunning = false
	t.status.State = state
	t.status.CurrentPhase = ""
	t.status.ActiveInjections = nil
	t.status.Elapsed = elapsed
	if state == types.StateCompleted {
		t.status.ProgressPercent = 100
	}
	if err != nil {
		t.status.Err = err.Error()
	}
}

// AddResult prepends a summary, evicting the oldest past the limit
func (t *Tracker) AddResult(summary types.ResultSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = append([]types.ResultSummary{summary}, t.recent...)
	if len(t.recent) > t.limit {
		t.recent = t.recent[:t.limit]
	}
}

// Recent returns the kept summaries, newest first
func (t *Tracker) Recent() []types.ResultSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.ResultSummary{}, t.recent...)
}
