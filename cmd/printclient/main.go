package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/printomat/printomat/internal/core"
)

// printclient is the single printer-side consumer: it holds the long-lived
// WebSocket, renders each job, and acknowledges the outcome so the broker can
// advance the queue.
func main() {
	serverURL := flag.String("server", "ws://localhost:8080", "broker URL")
	token := flag.String("token", os.Getenv("PRINTOMAT_PRINTER_TOKEN"), "printer auth token")
	spoolDir := flag.String("spool", "./spool", "directory for received images")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *token == "" {
		logger.Error("printer token is required (-token or PRINTOMAT_PRINTER_TOKEN)")
		os.Exit(1)
	}
	if err := os.MkdirAll(*spoolDir, 0o755); err != nil {
		logger.Error("failed to create spool directory", "error", err, "dir", *spoolDir)
		os.Exit(1)
	}

	endpoint, err := wsEndpoint(*serverURL, *token)
	if err != nil {
		logger.Error("invalid server URL", "error", err)
		os.Exit(1)
	}

	for {
		if err := runSession(endpoint, *spoolDir, logger); err != nil {
			logger.Warn("session ended", "error", err)
		}
		time.Sleep(5 * time.Second)
		logger.Info("reconnecting")
	}
}

func wsEndpoint(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func runSession(endpoint, spoolDir string, logger *slog.Logger) error {
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	logger.Info("connected to broker")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		var msg core.PrinterMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Error("malformed message from broker", "error", err)
			sendAck(conn, core.Acknowledgment{
				Status:       core.AckFailed,
				ErrorMessage: "malformed message",
			}, logger)
			continue
		}

		ack := core.Acknowledgment{Status: core.AckSuccess}
		if err := printJob(msg, spoolDir); err != nil {
			logger.Error("failed to print job", "error", err, "from", msg.From)
			ack = core.Acknowledgment{
				Status:       core.AckFailed,
				ErrorMessage: err.Error(),
			}
		} else {
			logger.Info("printed job", "from", msg.From)
		}
		sendAck(conn, ack, logger)
	}
}

func printJob(msg core.PrinterMessage, spoolDir string) error {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 32) + "\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "Date: %s\n", msg.Date)
	b.WriteString(strings.Repeat("-", 32) + "\n")
	if msg.Message != "" {
		b.WriteString(msg.Message + "\n")
	}

	if msg.Image != "" {
		path, err := saveImage(msg.Image, spoolDir)
		if err != nil {
			return fmt.Errorf("failed to save image: %w", err)
		}
		fmt.Fprintf(&b, "[image: %s]\n", path)
	}
	b.WriteString(strings.Repeat("=", 32) + "\n")

	_, err := os.Stdout.WriteString(b.String())
	return err
}

func saveImage(encoded, spoolDir string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image data: %w", err)
	}

	name := fmt.Sprintf("job-%d.png", time.Now().UnixNano())
	path := filepath.Join(spoolDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sendAck(conn *websocket.Conn, ack core.Acknowledgment, logger *slog.Logger) {
	if err := conn.WriteJSON(ack); err != nil {
		logger.Error("failed to send acknowledgment", "error", err)
	}
}
