package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/client"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/spf13/cobra"
)

var jobsStatus string

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect indexing jobs",
	Long: `List indexing jobs or inspect a specific job by ID.

Examples:
  ragctl jobs                      # List jobs, active first
  ragctl jobs --status processing  # Only running jobs
  ragctl jobs abc123               # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running indexing job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, processing, completed, failed, cancelled)")
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	opts := client.ListJobsOptions{}
	if jobsStatus != "" {
		status := models.JobStatus(jobsStatus)
		if !status.Valid() {
			return fmt.Errorf("unknown status: %s", jobsStatus)
		}
		opts.Status = &status
	}

	list, err := apiClient.ListJobs(ctx, opts)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(list.Jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-12s %-12s %-10s %s\n", "ID", "SOURCE", "STATUS", "PROGRESS", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------------")

	for _, job := range list.Jobs {
		progress := fmt.Sprintf("%d%%", job.ProgressPercent)
		if job.TotalFiles > 0 {
			progress = fmt.Sprintf("%d/%d", job.ProcessedFiles+job.FailedFiles, job.TotalFiles)
		}
		created := job.CreatedAt.Local().Format("15:04:05")
		fmt.Printf("%-36s %-12s %-12s %-10s %s\n", job.ID, job.SourceType, job.Status, progress, created)
	}
	fmt.Printf("\n%d of %d jobs shown\n", len(list.Jobs), list.Total)

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Source: %s", job.SourceType)
	if job.SourceURL != "" {
		fmt.Printf(" (%s)", job.SourceURL)
	}
	fmt.Println()
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%% (%d processed, %d failed of %d)\n",
		job.ProgressPercent, job.ProcessedFiles, job.FailedFiles, job.TotalFiles)
	if job.CurrentFile != nil {
		fmt.Printf("  Current file: %s\n", *job.CurrentFile)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("  Finished: %s\n", job.CompletedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Second))
		}
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", *job.ErrorMessage)
	}

	if job.Status == models.JobStatusProcessing {
		progress, err := apiClient.GetProgress(ctx, id)
		if err == nil && progress.EstimatedTimeRemaining != nil {
			fmt.Printf("  Estimated time remaining: %s\n", *progress.EstimatedTimeRemaining)
		}
	}

	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	job, err := apiClient.CancelJob(ctx, args[0])
	if err != nil {
		if client.IsRejected(err) {
			return fmt.Errorf("job %s is already finished: %w", args[0], err)
		}
		return fmt.Errorf("cancel job: %w", err)
	}

	fmt.Printf("Job %s cancelled (was %d%% done)\n", job.ID, job.ProgressPercent)
	return nil
}
