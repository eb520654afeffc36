package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var reprintCmd = &cobra.Command{
	Use:   "reprint <job-id>",
	Short: "Queue a copy of a past job",
	Long:  `Create a new queued job with the same payload as the given job. The original record is left untouched.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReprint,
}

var failCmd = &cobra.Command{
	Use:   "fail <job-id>",
	Short: "Mark a stuck job as failed",
	Long:  `Terminate a job stuck in queued or printing, e.g. after the printer disconnected mid-delivery.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runFail,
}

func init() {
	rootCmd.AddCommand(reprintCmd)
	rootCmd.AddCommand(failCmd)
}

func runReprint(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id: %s", args[0])
	}

	var resp struct {
		Message  string `json:"message"`
		NewJobID int64  `json:"new_job_id"`
	}
	if err := apiRequest("POST", fmt.Sprintf("/api/jobs/%d/reprint", id), nil, &resp); err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(resp)
	}
	fmt.Printf("Job %d reprinted as job %d\n", id, resp.NewJobID)
	return nil
}

func runFail(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id: %s", args[0])
	}

	if err := apiRequest("POST", fmt.Sprintf("/api/jobs/%d/fail", id), nil, nil); err != nil {
		return err
	}

	fmt.Printf("Job %d marked failed\n", id)
	return nil
}
