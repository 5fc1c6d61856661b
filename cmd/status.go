package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/server"
)

type statusOptions struct {
	serverURL string
	timeout   time.Duration
}

func newStatusCmd() *cobra.Command {
	o := &statusOptions{}
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Query server status or specific job",
		Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: o.timeout}
			base := strings.TrimRight(o.serverURL, "/")
			if len(args) == 0 {
				return listJobs(cmd.OutOrStdout(), client, base+"/api/v1/jobs")
			}
			return getJobStatus(cmd.OutOrStdout(), client, fmt.Sprintf("%s/api/v1/jobs/%s/status", base, args[0]), args[0])
		},
	}

	cmd.Flags().StringVar(&o.serverURL, "server", "http://localhost:8080", "Server URL")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

func listJobs(w io.Writer, client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Problem: %s (dim %d, %s, %d copies)\n",
			job.Config.Problem, job.Config.Dim, job.Config.Engine, job.Config.Params.PortfolioCopies)
		if job.Improvements > 0 {
			fmt.Fprintf(w, "  Score: %.6g -> %.6g\n", job.ArchetypeScore, job.BestScore)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, client *http.Client, url, jobID string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	var status server.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if status.Job == nil {
		return fmt.Errorf("empty status for job %s", jobID)
	}

	cfg := status.Config
	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Problem: %s\n", cfg.Problem)
	fmt.Fprintf(w, "  Dimension: %d\n", cfg.Dim)
	fmt.Fprintf(w, "  Engine: %s (seed %d)\n", cfg.Engine, cfg.Seed)
	fmt.Fprintf(w, "  Budget: iter=%d depth=%d attc=%d\n", cfg.Params.Iter, cfg.Params.Depth, cfg.Params.Attc)
	fmt.Fprintf(w, "  Bounds: [%g, %g]\n", cfg.Params.LowerBound, cfg.Params.UpperBound)
	fmt.Fprintf(w, "  Copies: %d\n", cfg.Params.PortfolioCopies)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	if status.Improvements > 0 || status.State == server.StateCompleted {
		fmt.Fprintf(w, "  Best Score: %.6g (%d improvements)\n", status.BestScore, status.Improvements)
	}
	if status.ArchetypeScore != 0 {
		fmt.Fprintf(w, "  Archetype Score: %.6g\n", status.ArchetypeScore)
	}
	if status.Summary != "" {
		fmt.Fprintf(w, "  Best: %s\n", status.Summary)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EvalsPerSecond > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f evals/sec\n", status.EvalsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
