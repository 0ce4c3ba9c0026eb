package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/middleware"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// Handler for WebSocket connections
type Handler struct {
	hub      *Hub
	service  services.RegistrationService
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, service services.RegistrationService, origins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		service:  service,
		upgrader: NewUpgrader(origins),
		logger:   logger,
	}
}

// HandleConnection godoc
// @Summary Stream registration state
// @Description Upgrades to a WebSocket that receives the student's state on every change and accepts register/cancel/refresh actions
// @Tags registrations, websocket
// @Security BearerAuth
// @Param token query string false "Access token when headers cannot be set"
// @Success 101 {string} string "Switching Protocols to WebSocket"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized: JWT token missing or invalid"
// @Router /ws [get]
func (h *Handler) HandleConnection(c *gin.Context) {
	studentID, ok := middleware.StudentIDFromContext(c)
	if !ok {
		middleware.HandleAPIError(c, apperrors.ErrIdentityMissing)
		return
	}

	updates, stop, err := h.service.Watch(c.Request.Context(), studentID)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		stop()
		h.logger.Error().Err(err).Str("studentID", studentID).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	client := newClient(h.hub, conn, studentID, h.service, stop, h.logger)
	h.hub.Register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump(updates)
	go client.readPump()

	h.logger.Info().
		Str("studentID", studentID).
		Str("remoteAddr", conn.RemoteAddr().String()).
		Msg("WebSocket connection established")
}
