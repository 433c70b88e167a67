package types

import "time"

// JobStatus represents the current status of a mirror job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// DownloadJob represents one website mirror request tracked by the registry
type DownloadJob struct {
	Token       string     `json:"token"`
	Status      JobStatus  `json:"status"`
	Progress    string     `json:"progress"`
	Website     string     `json:"website"`
	StartTime   time.Time  `json:"startTime"`
	Filename    string     `json:"filename,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job reached a final state. Terminal records
// never change again.
func (j *DownloadJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusError
}
