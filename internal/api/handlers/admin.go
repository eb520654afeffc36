package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/printomat/printomat/internal/archive"
	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/core"
	"github.com/printomat/printomat/internal/db"
)

// AdminHandler is the operator interface: queue/history inspection,
// reprints, and friend-token management. All routes require auth.
type AdminHandler struct {
	jobs     *db.JobStore
	cfg      *config.Config
	registry *core.SessionRegistry
	archiver *archive.Archiver
	logger   *slog.Logger
}

func NewAdminHandler(jobs *db.JobStore, cfg *config.Config, registry *core.SessionRegistry, archiver *archive.Archiver, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		jobs:     jobs,
		cfg:      cfg,
		registry: registry,
		archiver: archiver,
		logger:   logger.With("component", "admin"),
	}
}

type ListJobsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"max=500"`
	Offset int    `form:"offset"`
}

type AddTokenRequest struct {
	Name    string `json:"name" binding:"required"`
	Message string `json:"message" binding:"required"`
	// Token is optional; a secret is generated when omitted.
	Token string `json:"token"`
}

func (h *AdminHandler) GetQueue(c *gin.Context) {
	queued, err := h.jobs.ListQueued(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queue"})
		return
	}

	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get queue stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":              queued,
		"stats":             stats,
		"printer_connected": h.registry.Connected(),
	})
}

func (h *AdminHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), db.JobFilter{
		Status: db.JobStatus(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(jobs),
	})
}

func (h *AdminHandler) GetJob(c *gin.Context) {
	job, ok := h.jobByParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// ReprintJob copies a prior job's payload into a brand-new queued job. The
// original row is never mutated; this is the only retry path.
func (h *AdminHandler) ReprintJob(c *gin.Context) {
	job, ok := h.jobByParam(c)
	if !ok {
		return
	}

	newJob := &db.PrintJob{
		Kind:        job.Kind,
		Message:     job.Message,
		Image:       job.Image,
		SubmitterIP: job.SubmitterIP,
		FriendName:  job.FriendName,
		IsPriority:  job.IsPriority,
		Status:      db.StatusQueued,
	}
	if err := h.jobs.CreateJob(c.Request.Context(), newJob); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reprint job"})
		return
	}

	h.logger.Info("job reprinted", "job_id", job.ID, "new_job_id", newJob.ID)
	c.JSON(http.StatusOK, gin.H{
		"message":    "job reprinted",
		"new_job_id": newJob.ID,
	})
}

// FailJob lets an operator terminate a job orphaned in printing (e.g. the
// printer disconnected mid-flight and the outcome is unknown).
func (h *AdminHandler) FailJob(c *gin.Context) {
	job, ok := h.jobByParam(c)
	if !ok {
		return
	}

	err := h.jobs.MarkFailed(c.Request.Context(), job.ID, time.Now().UTC(), "failed by operator")
	if errors.Is(err, db.ErrStaleTransition) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job is not queued or printing"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update job"})
		return
	}

	h.logger.Info("job failed by operator", "job_id", job.ID)
	c.JSON(http.StatusOK, gin.H{"message": "job marked failed"})
}

func (h *AdminHandler) ListTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tokens": h.cfg.ListFriendTokens()})
}

func (h *AdminHandler) AddToken(c *gin.Context) {
	var req AddTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret := req.Token
	if secret == "" {
		secret = uuid.NewString()
	}

	ft := config.FriendToken{
		Name:    req.Name,
		Label:   config.LabelFromName(req.Name),
		Message: req.Message,
		Token:   secret,
	}
	if err := h.cfg.AddFriendToken(ft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("friend token added", "label", ft.Label)
	c.JSON(http.StatusCreated, ft)
}

func (h *AdminHandler) RemoveToken(c *gin.Context) {
	label := c.Param("label")
	if err := h.cfg.RemoveFriendToken(label); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("friend token removed", "label", label)
	c.JSON(http.StatusOK, gin.H{"message": "token removed"})
}

func (h *AdminHandler) ListArchives(c *gin.Context) {
	if h.archiver == nil {
		c.JSON(http.StatusOK, gin.H{"archives": []any{}, "enabled": false})
		return
	}

	archives, err := h.archiver.ListArchives()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list archives"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archives": archives, "enabled": true})
}

func (h *AdminHandler) jobByParam(c *gin.Context) (*db.PrintJob, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return nil, false
	}

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if errors.Is(err, db.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return nil, false
	}
	return job, true
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/queue", h.GetQueue)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/reprint", h.ReprintJob)
	r.POST("/jobs/:id/fail", h.FailJob)
	r.GET("/tokens", h.ListTokens)
	r.POST("/tokens", h.AddToken)
	r.DELETE("/tokens/:label", h.RemoveToken)
	r.GET("/archives", h.ListArchives)
}
