package types

import (
	"encoding/json"
	"math"
	"time"
)

// OutcomeStatus is the terminal state of one injection
type OutcomeStatus string

const (
	// OutcomeSucceeded the fault was applied, held and cleanly reverted
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeFailed the fault could not be applied, nothing was left behind
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeRevertFailed the fault was applied but could not be removed
	OutcomeRevertFailed OutcomeStatus = "revert_failed"
	// OutcomeSkipped the injection was never started, stop requested or budget exhausted
	OutcomeSkipped OutcomeStatus = "skipped"
)

// InjectionOutcome is the record produced by the executor for one injection
type InjectionOutcome struct {
	Phase     string        `json:"phase"`
	Index     int           `json:"index"`
	Kind      InjectionKind `json:"kind"`
	Target    string        `json:"target"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	AppliedAt time.Time     `json:"applied_at,omitempty"`
	Held      time.Duration `json:"held"`
	Revert    time.Duration `json:"revert"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// Attempted reports whether the injection counts towards the attempted total
func (o InjectionOutcome) Attempted() bool {
	return o.Status != OutcomeSkipped && o.Status != ""
}

// PhaseResult is produced once per phase and never mutated after append
type PhaseResult struct {
	Name           string
	Duration       time.Duration
	InjectionCount int
	Succeeded      int
	Failed         int
}

// Record accounts one outcome into the phase totals
func (p *PhaseResult) Record(outcome InjectionOutcome) {
	switch outcome.Status {
	case OutcomeSucceeded:
		p.InjectionCount++
		p.Succeeded++
	case OutcomeFailed, OutcomeRevertFailed:
		p.InjectionCount++
		p.Failed++
	}
}

type phaseResultJSON struct {
	Name           string  `json:"name"`
	Duration       float64 `json:"duration"`
	InjectionCount int     `json:"injection_count"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
}

// MarshalJSON encodes the phase duration in seconds
func (p PhaseResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(phaseResultJSON{
		Name:           p.Name,
		Duration:       p.Duration.Seconds(),
		InjectionCount: p.InjectionCount,
		Succeeded:      p.Succeeded,
		Failed:         p.Failed,
	})
}

// UnmarshalJSON reverses MarshalJSON. Results written without success counts
// are treated as fully successful.
func (p *PhaseResult) UnmarshalJSON(data []byte) error {
	raw := struct {
		phaseResultJSON
		Succeeded *int `json:"succeeded"`
	}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Name = raw.Name
	p.Duration = secondsToDuration(raw.Duration)
	p.InjectionCount = raw.InjectionCount
	p.Failed = raw.Failed
	if raw.Succeeded != nil {
		p.Succeeded = *raw.Succeeded
	} else {
		p.Succeeded = raw.InjectionCount - raw.Failed
	}
	return nil
}

// ScenarioResult is produced once at the end of a run and is immutable afterwards
type ScenarioResult struct {
	ScenarioName    string
	StartedAt       time.Time
	TotalDuration   time.Duration
	TotalInjections int
	PhaseResults    []PhaseResult
}

// Succeeded returns the number of injections that applied and reverted cleanly
func (r ScenarioResult) Succeeded() int {
	succeeded := 0
	for _, phase := range r.PhaseResults {
		succeeded += phase.Succeeded
	}
	return succeeded
}

// Attempted returns the number of injections that were started
func (r ScenarioResult) Attempted() int {
	attempted := 0
	for _, phase := range r.PhaseResults {
		attempted += phase.InjectionCount
	}
	return attempted
}

// SuccessRate is succeeded/attempted, a run without attempts is vacuously successful
func (r ScenarioResult) SuccessRate() float64 {
	attempted := r.Attempted()
	if attempted == 0 {
		return 1.0
	}
	return float64(r.Succeeded()) / float64(attempted)
}

type scenarioResultJSON struct {
	ScenarioName    string        `json:"scenario_name"`
	StartedAt       time.Time     `json:"started_at"`
	TotalDuration   float64       `json:"total_duration"`
	TotalInjections int           `json:"total_injections"`
	PhaseResults    []PhaseResult `json:"phase_results"`
}

// MarshalJSON produces the result artifact consumed by report generation
func (r ScenarioResult) MarshalJSON() ([]byte, error) {
	phases := r.PhaseResults
	if phases == nil {
		phases = []PhaseResult{}
	}
	return json.Marshal(scenarioResultJSON{
		ScenarioName:    r.ScenarioName,
		StartedAt:       r.StartedAt.UTC(),
		TotalDuration:   r.TotalDuration.Seconds(),
		TotalInjections: r.TotalInjections,
		PhaseResults:    phases,
	})
}

// UnmarshalJSON reverses MarshalJSON
func (r *ScenarioResult) UnmarshalJSON(data []byte) error {
	var raw scenarioResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ScenarioName = raw.ScenarioName
	r.StartedAt = raw.StartedAt
	r.TotalDuration = secondsToDuration(raw.TotalDuration)
	r.TotalInjections = raw.TotalInjections
	r.PhaseResults = raw.PhaseResults
	return nil
}

// ResultSummary is the listing entry of a persisted result
type ResultSummary struct {
	ID            string    `json:"id"`
	ScenarioName  string    `json:"scenario_name"`
	Timestamp     time.Time `json:"timestamp"`
	SuccessRate   float64   `json:"success_rate"`
	TotalDuration float64   `json:"total_duration_secs"`
	FilePath      string    `json:"file_path"`
}

// Summarize builds the listing entry of a result stored under id
func Summarize(id, path string, r ScenarioResult) ResultSummary {
	return ResultSummary{
		ID:            id,
		ScenarioName:  r.ScenarioName,
		Timestamp:     r.StartedAt,
		SuccessRate:   r.SuccessRate(),
		TotalDuration: r.TotalDuration.Seconds(),
		FilePath:      path,
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
