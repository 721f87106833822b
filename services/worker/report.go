package worker

import "time"

// SourceReport summarises one source within a run
type SourceReport struct {
	Name      string        `json:"name"`
	Bytes     int           `json:"bytes"`
	Method    string        `json:"method,omitempty"`
	Extracted int           `json:"extracted"`
	Deals     int           `json:"deals"`
	Announced int           `json:"announced"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Err       string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// RunReport summarises one pass over every configured source
type RunReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
	Err        string         `json:"error,omitempty"`
}

// Announced returns the number of deliveries across all sources
func (r *RunReport) Announced() int {
	total := 0
	for _, s := range r.Sources {
		total += s.Announced
	}
	return total
}
