package pipeline

import "time"

// Report is the outcome of one run.
type Report struct {
	RunID     string         `json:"runId"`
	Target    string         `json:"target"`
	State     State          `json:"state"`
	Stages    []*StageReport `json:"stages"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"duration"`
}

// StageReport is the outcome of one stage within a run.
type StageReport struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Content  any           `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Stage returns the report for the named stage, or nil if it never ran.
func (r *Report) Stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Ran returns the names of the stages that ran, in order.
func (r *Report) Ran() []string {
	names := make([]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		names = append(names, s.Name)
	}
	return names
}
