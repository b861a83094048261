// Package models defines data structures for the Epstein-RAG dashboard core.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus represents the lifecycle state of an indexing job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is absorbing: once a job reaches a
// terminal status none of its mutable fields change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IndexingJob is the persisted record of one indexing operation.
type IndexingJob struct {
	ID              surrealmodels.RecordID `json:"id"`
	SourceType      string                 `json:"source_type"`
	SourceURL       string                 `json:"source_url"`
	Status          JobStatus              `json:"status"`
	TotalFiles      int                    `json:"total_files"`
	ProcessedFiles  int                    `json:"processed_files"`
	FailedFiles     int                    `json:"failed_files"`
	CurrentFile     *string                `json:"current_file,omitempty"`
	ProgressPercent int                    `json:"progress_percent"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage    *string                `json:"error_message,omitempty"`
	Metadata        map[string]any         `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Job is the wire snapshot of an indexing job. Every job_updated event and
// every REST response carries the full snapshot, never a diff.
type Job struct {
	ID              string         `json:"id"`
	SourceType      string         `json:"source_type"`
	SourceURL       string         `json:"source_url"`
	Status          JobStatus      `json:"status"`
	TotalFiles      int            `json:"total_files"`
	ProcessedFiles  int            `json:"processed_files"`
	FailedFiles     int            `json:"failed_files"`
	CurrentFile     *string        `json:"current_file,omitempty"`
	ProgressPercent int            `json:"progress_percent"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Snapshot converts the persisted record into its wire form.
func (j *IndexingJob) Snapshot() (Job, error) {
	id, err := RecordIDString(j.ID)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:              id,
		SourceType:      j.SourceType,
		SourceURL:       j.SourceURL,
		Status:          j.Status,
		TotalFiles:      j.TotalFiles,
		ProcessedFiles:  j.ProcessedFiles,
		FailedFiles:     j.FailedFiles,
		CurrentFile:     j.CurrentFile,
		ProgressPercent: j.ProgressPercent,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		ErrorMessage:    j.ErrorMessage,
		Metadata:        j.Metadata,
		CreatedAt:       j.CreatedAt,
	}, nil
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status *JobStatus
	Limit  int
	Offset int
}

// JobProgress is the derived per-job progress view served by the dashboard.
type JobProgress struct {
	JobID                  string    `json:"job_id"`
	Status                 JobStatus `json:"status"`
	ProgressPercent        int       `json:"progress_percent"`
	TotalFiles             int       `json:"total_files"`
	ProcessedFiles         int       `json:"processed_files"`
	FailedFiles            int       `json:"failed_files"`
	CurrentFile            *string   `json:"current_file,omitempty"`
	EstimatedTimeRemaining *string   `json:"estimated_time_remaining,omitempty"`
}
