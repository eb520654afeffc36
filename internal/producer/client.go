package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client submits print jobs to the broker on behalf of a bot or service. It
// retries transport and server errors with exponential backoff; admission
// rejections are final and returned as *Rejection.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	logger     *slog.Logger
}

type Config struct {
	BaseURL    string
	Token      string
	RetryCount int
	RetryDelay time.Duration
	Timeout    time.Duration
}

type Submission struct {
	Message string `json:"message,omitempty"`
	Image   string `json:"image,omitempty"`
	Token   string `json:"token,omitempty"`
}

type Result struct {
	Status               string `json:"status"`
	Position             int    `json:"position"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Message              string `json:"message"`
	PrinterConnected     bool   `json:"printer_connected"`
}

// Rejection is a final admission refusal from the broker.
type Rejection struct {
	StatusCode int
	Reason     string `json:"error"`
	Detail     string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("submission rejected: %s: %s", r.Reason, r.Detail)
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With("component", "producer"),
	}
}

// Submit sends one job, retrying transient failures. A *Rejection is never
// retried: the broker has already decided.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if sub.Token == "" {
		sub.Token = c.token
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		result, err := c.send(ctx, sub)
		if err == nil {
			return result, nil
		}

		var rej *Rejection
		if errors.As(err, &rej) {
			return nil, rej
		}
		lastErr = err

		if attempt < c.retryCount {
			backoff := c.retryDelay * time.Duration(1<<(attempt-1))
			c.logger.Warn("submission failed, retrying",
				"attempt", attempt, "max", c.retryCount, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) send(ctx context.Context, sub Submission) (*Result, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		rej := &Rejection{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, rej); err != nil || rej.Reason == "" {
			rej.Reason = "rejected"
			rej.Detail = string(body)
		}
		return nil, rej
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %d", resp.StatusCode)
	}

	result := &Result{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}
