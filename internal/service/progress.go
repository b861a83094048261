package service

import (
	"fmt"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

// Percent computes progress as an integer 0-100. A job with no known files
// reads 0 until it terminates, then 100.
func Percent(status models.JobStatus, total, processed, failed int) int {
	if total <= 0 {
		if status.Terminal() {
			return 100
		}
		return 0
	}
	pct := 100 * (processed + failed) / total
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ETA estimates time remaining by linear extrapolation from the elapsed time
// and the fraction of files done. The second return is false when no estimate
// is available: nothing done yet, no start time, or the job is not processing.
func ETA(job models.Job, now time.Time) (time.Duration, bool) {
	if job.Status != models.JobStatusProcessing || job.StartedAt == nil {
		return 0, false
	}
	done := job.ProcessedFiles + job.FailedFiles
	if done <= 0 || job.TotalFiles <= 0 {
		return 0, false
	}

	elapsed := now.Sub(*job.StartedAt)
	if elapsed <= 0 {
		return 0, false
	}

	remaining := job.TotalFiles - done
	if remaining <= 0 {
		return 0, true
	}

	perFile := elapsed / time.Duration(done)
	return perFile * time.Duration(remaining), true
}

// FormatETA renders a duration the way the dashboard shows it: "3m 12s",
// or "45s" under a minute.
func FormatETA(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 0 {
		secs = 0
	}
	if secs >= 60 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}

// Progress builds the derived per-job progress view, including the humanized
// ETA string when one is available.
func Progress(job models.Job, now time.Time) models.JobProgress {
	p := models.JobProgress{
		JobID:           job.ID,
		Status:          job.Status,
		ProgressPercent: job.ProgressPercent,
		TotalFiles:      job.TotalFiles,
		ProcessedFiles:  job.ProcessedFiles,
		FailedFiles:     job.FailedFiles,
		CurrentFile:     job.CurrentFile,
	}
	if eta, ok := ETA(job, now); ok {
		s := FormatETA(eta)
		p.EstimatedTimeRemaining = &s
	}
	return p
}
