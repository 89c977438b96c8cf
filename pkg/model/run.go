package model

import "time"

// Run describes one simulation session recorded by the telemetry store.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Workload    string     `json:"workload" yaml:"workload"`
	Width       int        `json:"width" yaml:"width"`
	Height      int        `json:"height" yaml:"height"`
	Rule        string     `json:"rule" yaml:"rule"`
	Wrap        bool       `json:"wrap" yaml:"wrap"`
	Seed        int64      `json:"seed" yaml:"seed"`
	TargetFPS   float64    `json:"target_fps" yaml:"target_fps"`
	Generations int64      `json:"generations" yaml:"generations"`
	Frames      int64      `json:"frames" yaml:"frames"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// IsFinished returns true once the run has been closed.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}

// PassSample is the timing record of one completed pass.
type PassSample struct {
	RunID         string        `json:"run_id" yaml:"run_id"`
	Generation    int64         `json:"generation" yaml:"generation"`
	Duration      time.Duration `json:"duration_ns" yaml:"duration_ns"`
	FramesSpanned int           `json:"frames_spanned" yaml:"frames_spanned"`
	Units         int           `json:"units" yaml:"units"`
	Strategy      Strategy      `json:"strategy" yaml:"strategy"`
	RecordedAt    time.Time     `json:"recorded_at" yaml:"recorded_at"`
}

// PassSummary aggregates the pass samples of one run.
type PassSummary struct {
	Count int64         `json:"count" yaml:"count"`
	Mean  time.Duration `json:"mean_ns" yaml:"mean_ns"`
	Min   time.Duration `json:"min_ns" yaml:"min_ns"`
	Max   time.Duration `json:"max_ns" yaml:"max_ns"`
}
