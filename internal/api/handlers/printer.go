package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/core"
	"github.com/printomat/printomat/internal/db"
)

// PrinterHandler owns the WebSocket handshake for the printer client. At
// most one session runs at a time; refusals use a policy-violation close so
// the client can tell auth failures apart from transport drops.
type PrinterHandler struct {
	jobs     *db.JobStore
	cfg      *config.Config
	registry *core.SessionRegistry
	logger   *slog.Logger
	metrics  *core.Metrics
	upgrader websocket.Upgrader
}

func NewPrinterHandler(jobs *db.JobStore, cfg *config.Config, registry *core.SessionRegistry, logger *slog.Logger, metrics *core.Metrics) *PrinterHandler {
	return &PrinterHandler{
		jobs:     jobs,
		cfg:      cfg,
		registry: registry,
		logger:   logger.With("component", "printer"),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The printer client is not a browser; origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *PrinterHandler) Connect(c *gin.Context) {
	token := c.Query("token")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", c.ClientIP())
		return
	}

	expected := h.cfg.Printer.AuthToken
	if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		h.logger.Warn("printer connection rejected: invalid or missing token",
			"remote", c.ClientIP(), "token_provided", token != "")
		h.closeWith(conn, "unauthorized")
		return
	}

	session := core.NewSession(conn, h.jobs, h.cfg.Queue, h.logger, h.metrics)
	if err := h.registry.Acquire(session); err != nil {
		h.logger.Warn("printer connection rejected: session already active", "remote", c.ClientIP())
		h.closeWith(conn, "printer already connected")
		return
	}
	defer h.registry.Release(session)

	h.logger.Info("printer connected", "remote", c.ClientIP())
	session.Run(c.Request.Context())
	conn.Close()
}

func (h *PrinterHandler) closeWith(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	conn.Close()
}

func (h *PrinterHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.Connect)
}
