package model

import "time"

// JobStatus is the lifecycle state of a background job. The store itself
// accepts whatever it is given; these are the only values the workers write.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job types
type JobType string

const (
	JobTypeMerge           JobType = "merge"
	JobTypeEmailValidation JobType = "email_validation"
	JobTypeResearch        JobType = "research"
)

// Job is a background job record. It is stored whole as JSON and mutated by
// merge-style partial updates; fields not touched by an update are preserved.
// Result fields are only populated by the terminal update.
type Job struct {
	ID       string    `json:"jobId"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
	Created  time.Time `json:"created"`

	// Result payload — shape depends on job type.
	ResultID  string              `json:"resultId,omitempty"`
	ResultKey string              `json:"resultKey,omitempty"`
	Stats     interface{}         `json:"stats,omitempty"`
	Columns   []string            `json:"columns,omitempty"`
	Preview   []map[string]string `json:"preview,omitempty"`
}
