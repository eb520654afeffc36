package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show broker status",
	Long:  `Display printer connectivity and queue statistics.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var result queueResponse
	if err := apiRequest("GET", "/api/queue", nil, &result); err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(map[string]any{
			"printer_connected": result.PrinterConnected,
			"stats":             result.Stats,
		})
	}

	connected := "no"
	if result.PrinterConnected {
		connected = "yes"
	}
	fmt.Printf("Printer connected: %s\n", connected)
	fmt.Printf("Queued:   %d\n", result.Stats.Queued)
	fmt.Printf("Printing: %d\n", result.Stats.Printing)
	fmt.Printf("Printed:  %d\n", result.Stats.Printed)
	fmt.Printf("Failed:   %d\n", result.Stats.Failed)
	fmt.Printf("Total:    %d\n", result.Stats.Total)
	return nil
}
