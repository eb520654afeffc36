package producer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	}, testLogger())
}

func TestSubmitSuccess(t *testing.T) {
	var got Submission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Result{Status: "queued", Position: 2, EstimatedWaitMinutes: 2})
	}))
	defer server.Close()

	client := newClient(server.URL)
	result, err := client.Submit(context.Background(), Submission{Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, 2, result.Position)
	assert.Equal(t, "hi", got.Message)
}

func TestSubmitUsesDefaultToken(t *testing.T) {
	var got Submission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Result{Status: "printing_immediately"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Token: "tok-bot"}, testLogger())
	_, err := client.Submit(context.Background(), Submission{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "tok-bot", got.Token)
}

func TestSubmitRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate_limited", "message": "try again in 42 minutes",
		})
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Submit(context.Background(), Submission{Message: "hi"})

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "rate_limited", rej.Reason)
	assert.Equal(t, http.StatusTooManyRequests, rej.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(Result{Status: "queued"})
	}))
	defer server.Close()

	client := newClient(server.URL)
	result, err := client.Submit(context.Background(), Submission{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Submit(context.Background(), Submission{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}
