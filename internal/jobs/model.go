package jobs

import (
	"time"

	"assessment-backend/internal/assessments"
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusComplete, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further updates are expected for the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// ProjectInfo is the optional structured metadata captured at submission.
type ProjectInfo struct {
	ProjectName string `json:"projectName,omitempty"`
	Location    string `json:"location,omitempty"`
	ClientName  string `json:"clientName,omitempty"`
}

// Job represents one asynchronous risk-assessment generation.
// Status is only ever advanced by the backend; progress never decreases
// while processing.
type Job struct {
	ID           string                `json:"id"`
	Query        string                `json:"query"`
	WorkType     assessments.WorkType  `json:"workType"`
	ProjectInfo  ProjectInfo           `json:"projectInfo"`
	Status       Status                `json:"status"`
	Progress     int                   `json:"progress"`
	CurrentStep  string                `json:"currentStep,omitempty"`
	Result       *assessments.Document `json:"result,omitempty"`
	ErrorCode    *string               `json:"errorCode,omitempty"`
	ErrorMessage *string               `json:"error,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	StartedAt    *time.Time            `json:"startedAt,omitempty"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}
