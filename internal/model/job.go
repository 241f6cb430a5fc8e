package model

import "time"

// JobStatus is the availability flag of a job.  It is normally derived
// from the quota but supervisors may toggle it by hand.
type JobStatus string

const (
	JobOpen   JobStatus = "OPEN"
	JobClosed JobStatus = "CLOSED"
)

// Job is a unit of work published by a supervisor or an admin.  Hours is
// the fixed compensation value credited on completion and Quota the
// number of slots still open.
type Job struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Hours       int       `json:"hours"`
	Quota       int       `json:"quota"`
	Status      JobStatus `json:"status"`
	CreatedByID uint64    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
