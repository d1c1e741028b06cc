// Package report holds the per-run verification report.
package report

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Status of a pipeline step
type Status string

// Step statuses
const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// StepResult is the outcome of one step
type StepResult struct {
	Step     string        `json:"step"`
	Status   Status        `json:"status"`
	Artifact string        `json:"artifact,omitempty"`
	Size     int64         `json:"size,omitempty"`
	Modified time.Time     `json:"modified,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StepError records a failed step
type StepError struct {
	Step    string
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s", e.Step, e.Message)
}

// Report is the verification summary of one run
type Report struct {
	RunID      string       `json:"runId"`
	FileID     string       `json:"fileId"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Steps      []StepResult `json:"steps"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Add appends a step result
func (r *Report) Add(res StepResult) {
	r.Steps = append(r.Steps, res)
}

// Warn records a non-fatal warning
func (r *Report) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Step returns the result of a named step
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Errors returns one StepError per failed step
func (r *Report) Errors() []*StepError {
	var errs []*StepError
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			errs = append(errs, &StepError{Step: s.Step, Message: s.Error})
		}
	}
	return errs
}

// Err combines all step errors, or returns nil when no step failed
func (r *Report) Err() error {
	var err error
	for _, e := range r.Errors() {
		err = multierr.Append(err, e)
	}
	return err
}

// Succeeded reports whether at least one step completed or was skipped
// because its artifact already existed
func (r *Report) Succeeded() bool {
	for _, s := range r.Steps {
		if s.Status == StatusOK || (s.Status == StatusSkipped && s.Reason == ReasonExists) {
			return true
		}
	}
	return false
}

// Counts returns the number of steps per status
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, s := range r.Steps {
		counts[s.Status]++
	}
	return counts
}

// Skip reasons
const (
	ReasonExists           = "already exists"
	ReasonDependencyFailed = "dependency failed"
	ReasonDisabled         = "disabled"
	ReasonCancelled        = "cancelled"
)
