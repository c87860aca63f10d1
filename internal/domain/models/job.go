package models

import "time"

// JobState is the lifecycle state of a background job.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobError   JobState = "error"
	JobBusy    JobState = "busy"
)

// Job is a snapshot of one background job. Values are copies; the
// registry owns the mutable state.
type Job struct {
	Key        string    `json:"key"`
	Type       string    `json:"type"`
	Label      string    `json:"label"`
	State      JobState  `json:"state"`
	Message    string    `json:"message"`
	Result     int       `json:"result"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
