package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yigit/coursereg/internal/app/models/dto"
)

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	Uptime         string `json:"uptime"`
	ActiveSessions int    `json:"activeSessions"`
}

// HealthController reports liveness.
type HealthController struct {
	backend  string
	pinger   Pinger
	started  time.Time
	sessions func() int
}

// NewHealthController creates a new HealthController. pinger may be nil.
func NewHealthController(backend string, pinger Pinger, sessions func() int) *HealthController {
	return &HealthController{
		backend:  backend,
		pinger:   pinger,
		started:  time.Now(),
		sessions: sessions,
	}
}

// Health reports service status
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} dto.APIResponse{data=HealthResponse} "Service healthy"
// @Failure 503 {object} dto.APIResponse{data=HealthResponse} "Backend unreachable"
// @Router /health [get]
func (h *HealthController) Health(ctx *gin.Context) {
	resp := HealthResponse{
		Status:  "ok",
		Backend: h.backend,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions()
	}

	status := http.StatusOK
	if h.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(pingCtx); err != nil {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	ctx.JSON(status, dto.NewAPIResponse(resp))
}
