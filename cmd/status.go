package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/invsizer/internal/search"
	"github.com/cwbudde/invsizer/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries a running invsizer server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	ID                   string            `json:"id"`
	State                server.JobState   `json:"state"`
	Request              server.JobRequest `json:"request"`
	Evaluations          int               `json:"evaluations"`
	Best                 *search.Candidate `json:"best"`
	Elapsed              float64           `json:"elapsed"`
	EvaluationsPerSecond float64           `json:"evaluationsPerSecond"`
	Error                string            `json:"error"`
	RunID                string            `json:"runId"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", firstLine(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(cmd *cobra.Command, url string) error {
	var jobs []server.Job
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	w := stdout(cmd)
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  Kind: %s\n", job.Request.Kind)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Evaluations: %d\n", job.Evaluations)
		if job.Best != nil {
			fmt.Fprintf(w, "  Best: %s (objective %.6g)\n", job.Best.Sizing, job.Best.Objective)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func getJobStatus(cmd *cobra.Command, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	w := stdout(cmd)
	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "Kind: %s\n", status.Request.Kind)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Evaluations: %d\n", status.Evaluations)
	fmt.Fprintf(w, "  Elapsed: %s\n", time.Duration(status.Elapsed*float64(time.Second)).Round(time.Millisecond))
	if status.EvaluationsPerSecond > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f evaluations/sec\n", status.EvaluationsPerSecond)
	}
	if status.Best != nil {
		fmt.Fprintln(w)
		printCandidate(w, "Best sizing", *status.Best)
	}
	if status.RunID != "" {
		fmt.Fprintf(w, "\nRun recorded as %s\n", status.RunID)
	}
	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}
	return nil
}
