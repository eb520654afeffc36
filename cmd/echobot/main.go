package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/printomat/printomat/internal/producer"
)

// echobot is the simplest producer: every line on stdin becomes a print job.
func main() {
	serverURL := flag.String("server", "http://localhost:8080", "broker URL")
	token := flag.String("token", os.Getenv("PRINTOMAT_FRIEND_TOKEN"), "friend token (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client := producer.NewClient(producer.Config{
		BaseURL: *serverURL,
		Token:   *token,
	}, logger)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		result, err := client.Submit(context.Background(), producer.Submission{Message: line})
		if err != nil {
			var rej *producer.Rejection
			if errors.As(err, &rej) {
				fmt.Printf("rejected (%s): %s\n", rej.Reason, rej.Detail)
				continue
			}
			logger.Error("submission failed", "error", err)
			continue
		}

		if result.Status == "printing_immediately" {
			fmt.Println("queued for immediate printing")
		} else {
			fmt.Printf("queued at position %d (about %d minutes)\n",
				result.Position, result.EstimatedWaitMinutes)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}
}
