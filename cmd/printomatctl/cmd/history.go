package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	historyStatus string
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past and present jobs",
	Long:  `List jobs most recent first, optionally filtered by status (queued, printing, printed, failed).`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of jobs")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of jobs to skip")
}

type historyResponse struct {
	Jobs   []jobInfo `json:"jobs"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Count  int       `json:"count"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if historyStatus != "" {
		query.Set("status", historyStatus)
	}
	query.Set("limit", strconv.Itoa(historyLimit))
	query.Set("offset", strconv.Itoa(historyOffset))

	var result historyResponse
	if err := apiRequest("GET", "/api/jobs?"+query.Encode(), nil, &result); err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(result)
	}

	if len(result.Jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Status", "Priority", "From", "Kind", "Created", "Error")

	for _, job := range result.Jobs {
		priority := ""
		if job.IsPriority {
			priority = "yes"
		}
		table.Append(
			strconv.FormatInt(job.ID, 10),
			job.Status,
			priority,
			job.from(),
			job.Kind,
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			job.ErrorMessage,
		)
	}
	table.Render()
	fmt.Printf("\nShowing %d jobs (offset %d)\n", result.Count, result.Offset)
	return nil
}
