package model

import "time"

// ApplicationStatus is the workflow position of a job application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "PENDING"
	ApplicationAccepted  ApplicationStatus = "ACCEPTED"
	ApplicationVerifying ApplicationStatus = "VERIFYING"
	ApplicationCompleted ApplicationStatus = "COMPLETED"
	ApplicationRejected  ApplicationStatus = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationCompleted || s == ApplicationRejected
}

// HoldsSlot reports whether an application in this status occupies one
// unit of its job's quota.
func (s ApplicationStatus) HoldsSlot() bool {
	return s == ApplicationAccepted || s == ApplicationVerifying
}

// JobApplication is a student's claim on a job.  At most one exists per
// (JobID, UserID) pair.
//
// Fields:
//  ID             – primary key identifier.
//  JobID          – job applied to.
//  UserID         – applying student.
//  Status         – PENDING, ACCEPTED, VERIFYING, COMPLETED or REJECTED.
//  AppliedAt      – when the student applied.
//  ProofImage1    – first proof of work (URL or storage key).
//  ProofImage2    – optional second proof.
//  SubmissionNote – free text from the student with the proof.
//  UpdatedAt      – last status change.
type JobApplication struct {
	ID             uint64            `json:"id"`
	JobID          uint64            `json:"job_id"`
	UserID         uint64            `json:"user_id"`
	Status         ApplicationStatus `json:"status"`
	AppliedAt      time.Time         `json:"applied_at"`
	ProofImage1    string            `json:"proof_image1,omitempty"`
	ProofImage2    string            `json:"proof_image2,omitempty"`
	SubmissionNote string            `json:"submission_note,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ApplicationDetail joins an application with the job and student columns
// the dashboards show next to it.
type ApplicationDetail struct {
	JobApplication
	JobTitle    string `json:"job_title"`
	JobHours    int    `json:"job_hours"`
	JobOwnerID  uint64 `json:"job_owner_id"`
	StudentName string `json:"student_name"`
	StudentNIM  string `json:"student_nim,omitempty"`
}
