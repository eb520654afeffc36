package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/db"
)

var ErrPrinterAlreadyConnected = errors.New("printer already connected")

// SessionRegistry holds the single allowed printer session. Acquisition is a
// compare-and-swap against "no active session"; a second concurrent
// connection attempt is refused outright.
type SessionRegistry struct {
	mu      sync.Mutex
	active  *Session
	metrics *Metrics
}

func NewSessionRegistry(metrics *Metrics) *SessionRegistry {
	return &SessionRegistry{metrics: metrics}
}

func (r *SessionRegistry) Acquire(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrPrinterAlreadyConnected
	}
	r.active = s
	r.metrics.SetPrinterConnected(true)
	return nil
}

func (r *SessionRegistry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == s {
		r.active = nil
		r.metrics.SetPrinterConnected(false)
	}
}

func (r *SessionRegistry) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Session is one live printer connection and its delivery loop. All
// connection state (in-flight job, send-interval clock) lives here and dies
// with the session; the job store is the durable source of truth.
type Session struct {
	conn         *websocket.Conn
	jobs         *db.JobStore
	sendInterval time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics

	// inFlightID is the job awaiting acknowledgment, 0 when none.
	inFlightID int64
	lastSend   time.Time
}

func NewSession(conn *websocket.Conn, jobs *db.JobStore, cfg config.QueueConfig, logger *slog.Logger, metrics *Metrics) *Session {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Session{
		conn:         conn,
		jobs:         jobs,
		sendInterval: cfg.SendInterval,
		pollInterval: poll,
		logger:       logger.With("component", "session"),
		metrics:      metrics,
	}
}

// Run drives the send/acknowledge loop until the connection drops or ctx is
// cancelled. The caller owns registry acquisition and connection close.
func (s *Session) Run(ctx context.Context) {
	acks := make(chan []byte, 4)
	done := make(chan struct{})
	go s.readPump(acks, done)

	// The interval clock starts at connect time, so the first regular job
	// waits a full interval while priority jobs go out immediately.
	s.lastSend = time.Now()

	for {
		s.maybeSend(ctx)

		select {
		case <-ctx.Done():
			s.conn.Close()
			<-done
			return
		case <-done:
			s.logger.Info("printer disconnected", "in_flight", s.inFlightID)
			return
		case data := <-acks:
			s.handleAck(ctx, data)
		case <-time.After(s.pollInterval):
		}
	}
}

// readPump feeds printer frames to the delivery loop and signals transport
// failure by closing done.
func (s *Session) readPump(acks chan<- []byte, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case acks <- data:
		default:
			s.logger.Warn("dropping printer frame, acknowledgment backlog full")
		}
	}
}

// maybeSend picks the next queued job and transmits it if timing policy
// allows: priority jobs ignore the send interval, regular jobs wait for it.
func (s *Session) maybeSend(ctx context.Context) {
	if s.inFlightID != 0 {
		return
	}

	job, err := s.jobs.NextQueued(ctx)
	if err != nil {
		s.logger.Error("failed to peek queue", "error", err)
		return
	}
	if job == nil {
		return
	}

	if !job.IsPriority && time.Since(s.lastSend) < s.sendInterval {
		return
	}

	if err := s.jobs.MarkPrinting(ctx, job.ID); err != nil {
		if errors.Is(err, db.ErrStaleTransition) {
			// Someone else moved the job since we peeked; re-peek next tick.
			return
		}
		s.logger.Error("failed to mark job printing", "job_id", job.ID, "error", err)
		return
	}

	msg := PrinterMessage{
		From:    job.SubmitterIdentity(),
		Date:    time.Now().UTC().Format(time.RFC3339),
		Message: job.Message,
		Image:   job.Image,
	}

	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Error("failed to send job to printer", "job_id", job.ID, "error", err)
		s.failJob(ctx, job.ID, fmt.Sprintf("server error sending to printer: %v", err))
		s.metrics.ObserveDelivery("send_error")
		return
	}

	s.inFlightID = job.ID
	if !job.IsPriority {
		// The interval gates regular traffic cadence only; priority sends
		// must not delay the next regular job.
		s.lastSend = time.Now()
	}
	s.logger.Info("sent job to printer",
		"job_id", job.ID, "priority", job.IsPriority, "from", job.SubmitterIdentity())
}

// handleAck reconciles one printer frame against the in-flight job.
// Malformed or stray frames are logged and discarded; they never end the
// session.
func (s *Session) handleAck(ctx context.Context, data []byte) {
	var ack Acknowledgment
	if err := json.Unmarshal(data, &ack); err != nil {
		s.logger.Error("malformed acknowledgment", "error", err, "payload", string(data))
		return
	}

	if s.inFlightID == 0 {
		s.logger.Warn("acknowledgment received with no job in flight", "status", ack.Status)
		return
	}

	id := s.inFlightID
	s.inFlightID = 0
	now := time.Now().UTC()

	if ack.Status == AckSuccess {
		if err := s.jobs.MarkPrinted(ctx, id, now); err != nil {
			s.logger.Error("failed to mark job printed", "job_id", id, "error", err)
			return
		}
		s.metrics.ObserveDelivery("printed")
		s.logger.Info("printer acknowledged success", "job_id", id)
		return
	}

	detail := ack.ErrorMessage
	if detail == "" {
		detail = defaultAckError
	}
	if err := s.jobs.MarkFailed(ctx, id, now, detail); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", id, "error", err)
		return
	}
	s.metrics.ObserveDelivery("failed")
	s.logger.Warn("printer reported failure", "job_id", id, "error", detail)
}

func (s *Session) failJob(ctx context.Context, id int64, detail string) {
	if err := s.jobs.MarkFailed(ctx, id, time.Now().UTC(), detail); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", id, "error", err)
	}
}
