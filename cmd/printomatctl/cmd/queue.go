package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show jobs waiting for the printer",
	Long:  `List queued jobs in delivery order along with queue statistics.`,
	RunE:  runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

type jobInfo struct {
	ID           int64      `json:"id"`
	Kind         string     `json:"kind"`
	Message      string     `json:"message,omitempty"`
	SubmitterIP  string     `json:"submitter_ip"`
	FriendName   string     `json:"friend_name,omitempty"`
	IsPriority   bool       `json:"is_priority"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PrintedAt    *time.Time `json:"printed_at,omitempty"`
}

type queueStats struct {
	Queued   int `json:"queued"`
	Printing int `json:"printing"`
	Printed  int `json:"printed"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

type queueResponse struct {
	Jobs             []jobInfo  `json:"jobs"`
	Stats            queueStats `json:"stats"`
	PrinterConnected bool       `json:"printer_connected"`
}

func (j jobInfo) from() string {
	if j.FriendName != "" {
		return j.FriendName
	}
	return j.SubmitterIP
}

func runQueue(cmd *cobra.Command, args []string) error {
	var result queueResponse
	if err := apiRequest("GET", "/api/queue", nil, &result); err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(result)
	}

	if len(result.Jobs) == 0 {
		fmt.Println("Queue is empty")
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Priority", "From", "Kind", "Created")

		for _, job := range result.Jobs {
			priority := ""
			if job.IsPriority {
				priority = "yes"
			}
			table.Append(
				strconv.FormatInt(job.ID, 10),
				priority,
				job.from(),
				job.Kind,
				job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			)
		}
		table.Render()
	}

	connected := "no"
	if result.PrinterConnected {
		connected = "yes"
	}
	fmt.Printf("\nQueued: %d  Printing: %d  Printer connected: %s\n",
		result.Stats.Queued, result.Stats.Printing, connected)
	return nil
}
