package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks one evaluation request. Result holds the raw model output and is
// written once, on the completed transition. The lease columns record which
// worker currently owns the job; they never change the visible status.
type Job struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CVID           uuid.UUID  `gorm:"column:cv_id;type:uuid;not null;index" json:"cv_id"`
	SubmissionID   uuid.UUID  `gorm:"column:submission_id;type:uuid;not null;index" json:"submission_id"`
	Title          string     `gorm:"type:text" json:"title"`
	Status         JobStatus  `gorm:"type:text;not null;index" json:"status"`
	Result         *string    `gorm:"type:text" json:"result"`
	ErrorMessage   *string    `gorm:"type:text" json:"error_message,omitempty"`
	Attempts       int        `gorm:"not null" json:"attempts"`
	LeaseOwner     *string    `gorm:"type:text" json:"-"`
	LeaseExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
