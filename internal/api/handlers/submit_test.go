package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/core"
	"github.com/printomat/printomat/internal/db"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSubmitEngine(t *testing.T, cfg *config.Config) (*gin.Engine, *db.JobStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	jobs := db.NewJobStore(database)
	registry := core.NewSessionRegistry(nil)
	admission := core.NewAdmissionController(jobs, cfg, cfg, testLogger(), nil)

	engine := gin.New()
	NewSubmitHandler(admission, registry, testLogger()).RegisterRoutes(engine)
	return engine, jobs
}

func submitTestConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			MaxSize:      10,
			SendInterval: 60 * time.Second,
			PollInterval: time.Second,
		},
		RateLimit: config.RateLimitConfig{Cooldown: time.Hour},
		FriendTokens: []config.FriendToken{
			{Name: "Ada Lovelace", Label: "ada-lovelace", Message: "On its way!", Token: "tok-ada"},
		},
	}
}

func postJSON(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:41000"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpoint(t *testing.T) {
	engine, jobs := newSubmitEngine(t, submitTestConfig())

	w := postJSON(engine, `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 0, resp.Position)
	assert.False(t, resp.PrinterConnected)

	stats, err := jobs.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Queued)
}

func TestSubmitEndpointForm(t *testing.T) {
	engine, _ := newSubmitEngine(t, submitTestConfig())

	req := httptest.NewRequest(http.MethodPost, "/submit",
		strings.NewReader("message=hello+form&token=tok-ada"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "203.0.113.7:41000"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "printing_immediately", resp.Status)
	assert.Equal(t, "On its way!", resp.Message)
}

func TestSubmitEndpointRejections(t *testing.T) {
	engine, _ := newSubmitEngine(t, submitTestConfig())

	cases := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"empty payload", `{}`, http.StatusBadRequest, "invalid_request"},
		{"bad token", `{"message":"hi","token":"nope"}`, http.StatusBadRequest, "invalid_token"},
		{"broken json", `{"message":`, http.StatusBadRequest, "invalid_request"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(engine, tc.body)
			assert.Equal(t, tc.wantStatus, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantError, resp["error"])
		})
	}
}

func TestSubmitEndpointRateLimited(t *testing.T) {
	engine, _ := newSubmitEngine(t, submitTestConfig())

	w := postJSON(engine, `{"message":"first"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(engine, `{"message":"second"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limited", resp["error"])
	assert.Contains(t, resp["message"], "try again in")
}

func TestSubmitEndpointQueueFull(t *testing.T) {
	cfg := submitTestConfig()
	cfg.Queue.MaxSize = 1
	cfg.RateLimit.Cooldown = 0
	engine, _ := newSubmitEngine(t, cfg)

	w := postJSON(engine, `{"message":"first"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(engine, `{"message":"second"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queue_full", resp["error"])
}
