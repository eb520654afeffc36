package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/db"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJobStore(t *testing.T) *db.JobStore {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return db.NewJobStore(database)
}

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			MaxSize:      1000,
			SendInterval: 60 * time.Second,
			PollInterval: time.Second,
		},
		RateLimit: config.RateLimitConfig{Cooldown: time.Hour},
		FriendTokens: []config.FriendToken{
			{Name: "Ada Lovelace", Label: "ada-lovelace", Message: "On its way!", Token: "tok-ada"},
		},
	}
}

func newTestAdmission(t *testing.T, cfg *config.Config) (*AdmissionController, *db.JobStore) {
	t.Helper()
	jobs := newTestJobStore(t)
	return NewAdmissionController(jobs, cfg, cfg, testLogger(), nil), jobs
}

func requireRejection(t *testing.T, err error, reason RejectReason) *Rejection {
	t.Helper()
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, reason, rej.Reason)
	return rej
}

func TestSubmitWithoutPayload(t *testing.T) {
	adm, jobs := newTestAdmission(t, testConfig())

	_, err := adm.Submit(context.Background(), SubmitInput{SubmitterIP: "1.1.1.1"})
	requireRejection(t, err, RejectInvalidRequest)

	count, err := jobs.CountActive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubmitInvalidToken(t *testing.T) {
	adm, jobs := newTestAdmission(t, testConfig())

	// A bad token never degrades to an anonymous submission.
	_, err := adm.Submit(context.Background(), SubmitInput{
		Message: "hi", Token: "wrong", SubmitterIP: "1.1.1.1",
	})
	requireRejection(t, err, RejectInvalidToken)

	count, err := jobs.CountActive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubmitAnonymous(t *testing.T) {
	adm, _ := newTestAdmission(t, testConfig())

	result, err := adm.Submit(context.Background(), SubmitInput{
		Message: "hello", SubmitterIP: "1.1.1.1",
	})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusQueued, result.Status)
	assert.Equal(t, 0, result.Position)
	assert.Equal(t, 0, result.EstimatedWaitMinutes)
	assert.Empty(t, result.Message)
	assert.False(t, result.Job.IsPriority)
	assert.Equal(t, db.KindText, result.Job.Kind)
}

func TestSubmitRateLimited(t *testing.T) {
	adm, jobs := newTestAdmission(t, testConfig())
	ctx := context.Background()

	// A submission 30 minutes ago leaves half the cooldown remaining.
	require.NoError(t, jobs.CreateJob(ctx, &db.PrintJob{
		Kind: db.KindText, Message: "earlier", SubmitterIP: "1.1.1.1",
		CreatedAt: time.Now().UTC().Add(-30 * time.Minute),
	}))

	_, err := adm.Submit(ctx, SubmitInput{Message: "again", SubmitterIP: "1.1.1.1"})
	rej := requireRejection(t, err, RejectRateLimited)
	assert.Equal(t, 30, rej.RetryAfterMinutes)

	// Other IPs are unaffected.
	_, err = adm.Submit(ctx, SubmitInput{Message: "hi", SubmitterIP: "2.2.2.2"})
	require.NoError(t, err)
}

func TestSubmitAfterCooldownExpires(t *testing.T) {
	adm, jobs := newTestAdmission(t, testConfig())
	ctx := context.Background()

	require.NoError(t, jobs.CreateJob(ctx, &db.PrintJob{
		Kind: db.KindText, Message: "earlier", SubmitterIP: "1.1.1.1",
		CreatedAt: time.Now().UTC().Add(-61 * time.Minute),
	}))

	_, err := adm.Submit(ctx, SubmitInput{Message: "again", SubmitterIP: "1.1.1.1"})
	require.NoError(t, err)
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.MaxSize = 1
	cfg.RateLimit.Cooldown = 0
	adm, _ := newTestAdmission(t, cfg)
	ctx := context.Background()

	_, err := adm.Submit(ctx, SubmitInput{Message: "first", SubmitterIP: "1.1.1.1"})
	require.NoError(t, err)

	_, err = adm.Submit(ctx, SubmitInput{Message: "second", SubmitterIP: "2.2.2.2"})
	requireRejection(t, err, RejectQueueFull)
}

func TestSubmitPriorityBypassesLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.MaxSize = 1
	adm, jobs := newTestAdmission(t, cfg)
	ctx := context.Background()

	// Fill the queue and exhaust the IP's cooldown.
	_, err := adm.Submit(ctx, SubmitInput{Message: "filler", SubmitterIP: "1.1.1.1"})
	require.NoError(t, err)

	result, err := adm.Submit(ctx, SubmitInput{
		Message: "vip", Token: "tok-ada", SubmitterIP: "1.1.1.1",
	})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusPriority, result.Status)
	assert.Equal(t, 0, result.Position)
	assert.Equal(t, "On its way!", result.Message)
	assert.True(t, result.Job.IsPriority)
	assert.Equal(t, "Ada Lovelace", result.Job.FriendName)

	next, err := jobs.NextQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Job.ID, next.ID)
}

func TestSubmitEstimatedWait(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Cooldown = 0
	adm, _ := newTestAdmission(t, cfg)
	ctx := context.Background()

	_, err := adm.Submit(ctx, SubmitInput{Message: "a", SubmitterIP: "1.1.1.1"})
	require.NoError(t, err)

	result, err := adm.Submit(ctx, SubmitInput{Message: "b", SubmitterIP: "2.2.2.2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Position)
	assert.Equal(t, 1, result.EstimatedWaitMinutes)
}

func TestSubmitImageKinds(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Cooldown = 0
	adm, _ := newTestAdmission(t, cfg)
	ctx := context.Background()

	img, err := adm.Submit(ctx, SubmitInput{Image: "aGk=", SubmitterIP: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, db.KindImage, img.Job.Kind)

	mixed, err := adm.Submit(ctx, SubmitInput{Message: "hi", Image: "aGk=", SubmitterIP: "2.2.2.2"})
	require.NoError(t, err)
	assert.Equal(t, db.KindMixed, mixed.Job.Kind)
}

func TestRejectionError(t *testing.T) {
	rej := &Rejection{Reason: RejectQueueFull, Message: "full"}
	var err error = rej
	assert.True(t, errors.As(err, &rej))
	assert.Contains(t, err.Error(), "queue_full")
}
