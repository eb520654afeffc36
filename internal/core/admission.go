package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/db"
)

type RejectReason string

const (
	RejectInvalidRequest RejectReason = "invalid_request"
	RejectInvalidToken   RejectReason = "invalid_token"
	RejectRateLimited    RejectReason = "rate_limited"
	RejectQueueFull      RejectReason = "queue_full"
)

// Rejection is a synchronous admission refusal. It is returned as the error
// from Submit and never retried server-side.
type Rejection struct {
	Reason            RejectReason
	Message           string
	RetryAfterMinutes int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("submission rejected: %s: %s", r.Reason, r.Message)
}

type SubmitInput struct {
	Message     string
	Image       string
	Token       string
	SubmitterIP string
}

type SubmitResult struct {
	Job                  *db.PrintJob
	Status               string
	Position             int
	EstimatedWaitMinutes int
	// Message is the credential's acknowledgment text, set only for
	// priority submissions.
	Message string
}

const (
	SubmitStatusQueued   = "queued"
	SubmitStatusPriority = "printing_immediately"
)

// CredentialResolver looks up a priority credential by its secret.
type CredentialResolver interface {
	ResolveFriendToken(secret string) *config.FriendToken
}

// AdmissionController validates and rate-limits submissions before they
// enter the job store. It never talks to the delivery session; the store is
// the only shared state.
type AdmissionController struct {
	jobs         *db.JobStore
	creds        CredentialResolver
	cooldown     time.Duration
	maxQueue     int
	sendInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

func NewAdmissionController(jobs *db.JobStore, creds CredentialResolver, cfg *config.Config, logger *slog.Logger, metrics *Metrics) *AdmissionController {
	return &AdmissionController{
		jobs:         jobs,
		creds:        creds,
		cooldown:     cfg.RateLimit.Cooldown,
		maxQueue:     cfg.Queue.MaxSize,
		sendInterval: cfg.Queue.SendInterval,
		logger:       logger.With("component", "admission"),
		metrics:      metrics,
	}
}

// Submit runs the admission checks in order and persists the job on
// success. A returned *Rejection means no side effects happened; any other
// error is an internal store failure.
func (a *AdmissionController) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.Message == "" && in.Image == "" {
		a.logger.Debug("rejected submission without payload", "ip", in.SubmitterIP)
		a.metrics.ObserveSubmission(string(RejectInvalidRequest))
		return nil, &Rejection{
			Reason:  RejectInvalidRequest,
			Message: "at least message or image must be provided",
		}
	}

	// A supplied credential must resolve; it never falls back to an
	// anonymous submission.
	var cred *config.FriendToken
	if in.Token != "" {
		cred = a.creds.ResolveFriendToken(in.Token)
		if cred == nil {
			a.logger.Warn("invalid friend token", "ip", in.SubmitterIP)
			a.metrics.ObserveSubmission(string(RejectInvalidToken))
			return nil, &Rejection{
				Reason:  RejectInvalidToken,
				Message: "invalid friend token",
			}
		}
	}

	if cred == nil {
		if rej, err := a.checkRateLimit(ctx, in.SubmitterIP); err != nil {
			return nil, err
		} else if rej != nil {
			a.metrics.ObserveSubmission(string(RejectRateLimited))
			return nil, rej
		}

		active, err := a.jobs.CountActive(ctx)
		if err != nil {
			return nil, err
		}
		if active >= a.maxQueue {
			a.logger.Warn("queue full", "ip", in.SubmitterIP, "active", active, "max", a.maxQueue)
			a.metrics.ObserveSubmission(string(RejectQueueFull))
			return nil, &Rejection{
				Reason:  RejectQueueFull,
				Message: "queue is currently full, try again later",
			}
		}
	}

	job := &db.PrintJob{
		Kind:        kindOf(in.Message, in.Image),
		Message:     in.Message,
		Image:       in.Image,
		SubmitterIP: in.SubmitterIP,
		IsPriority:  cred != nil,
		Status:      db.StatusQueued,
	}
	if cred != nil {
		job.FriendName = cred.Name
	}

	if err := a.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	position, err := a.jobs.QueuePosition(ctx, job)
	if err != nil {
		return nil, err
	}

	a.metrics.ObserveSubmission("accepted")

	if cred != nil {
		a.logger.Info("priority job queued",
			"job_id", job.ID, "from", cred.Name, "ip", in.SubmitterIP, "kind", job.Kind)
		return &SubmitResult{
			Job:     job,
			Status:  SubmitStatusPriority,
			Message: cred.Message,
		}, nil
	}

	a.logger.Info("job queued",
		"job_id", job.ID, "ip", in.SubmitterIP, "position", position, "kind", job.Kind)
	return &SubmitResult{
		Job:                  job,
		Status:               SubmitStatusQueued,
		Position:             position,
		EstimatedWaitMinutes: position * a.intervalMinutes(),
	}, nil
}

func (a *AdmissionController) checkRateLimit(ctx context.Context, ip string) (*Rejection, error) {
	if a.cooldown <= 0 {
		return nil, nil
	}

	last, err := a.jobs.LastJobFrom(ctx, ip)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}

	remaining := a.cooldown - time.Since(last.CreatedAt)
	if remaining <= 0 {
		return nil, nil
	}

	minutes := int(math.Ceil(remaining.Minutes()))
	a.logger.Warn("rate limit exceeded", "ip", ip, "retry_minutes", minutes)
	return &Rejection{
		Reason:            RejectRateLimited,
		Message:           fmt.Sprintf("try again in %d minutes", minutes),
		RetryAfterMinutes: minutes,
	}, nil
}

func (a *AdmissionController) intervalMinutes() int {
	if a.sendInterval <= 0 {
		return 0
	}
	return int(math.Ceil(a.sendInterval.Minutes()))
}

func kindOf(message, image string) db.JobKind {
	switch {
	case message != "" && image != "":
		return db.KindMixed
	case image != "":
		return db.KindImage
	default:
		return db.KindText
	}
}
