package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printomat/printomat/internal/core"
)

type SubmitRequest struct {
	Message string `json:"message" form:"message"`
	Image   string `json:"image" form:"image"`
	Token   string `json:"token" form:"token"`
}

type SubmitResponse struct {
	Status               string `json:"status"`
	Position             int    `json:"position"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Message              string `json:"message,omitempty"`
	PrinterConnected     bool   `json:"printer_connected"`
}

// SubmitHandler exposes the admission controller over HTTP. It accepts both
// JSON and form-encoded bodies; responses are always JSON.
type SubmitHandler struct {
	admission *core.AdmissionController
	registry  *core.SessionRegistry
	logger    *slog.Logger
}

func NewSubmitHandler(admission *core.AdmissionController, registry *core.SessionRegistry, logger *slog.Logger) *SubmitHandler {
	return &SubmitHandler{
		admission: admission,
		registry:  registry,
		logger:    logger.With("component", "submit"),
	}
}

func (h *SubmitHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(core.RejectInvalidRequest),
			"message": "malformed request body",
		})
		return
	}

	result, err := h.admission.Submit(c.Request.Context(), core.SubmitInput{
		Message:     req.Message,
		Image:       req.Image,
		Token:       req.Token,
		SubmitterIP: c.ClientIP(),
	})
	if err != nil {
		var rej *core.Rejection
		if errors.As(err, &rej) {
			c.JSON(rejectionStatus(rej.Reason), gin.H{
				"error":   string(rej.Reason),
				"message": rej.Message,
			})
			return
		}
		h.logger.Error("submission failed", "error", err, "ip", c.ClientIP())
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to process request, please try again later",
		})
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		Status:               result.Status,
		Position:             result.Position,
		EstimatedWaitMinutes: result.EstimatedWaitMinutes,
		Message:              result.Message,
		PrinterConnected:     h.registry.Connected(),
	})
}

func rejectionStatus(reason core.RejectReason) int {
	switch reason {
	case core.RejectRateLimited:
		return http.StatusTooManyRequests
	case core.RejectQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (h *SubmitHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/submit", h.Submit)
}
