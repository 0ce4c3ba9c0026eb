package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yigit/coursereg/internal/app/controllers"
	"github.com/yigit/coursereg/internal/middleware"
	"github.com/yigit/coursereg/internal/pkg/websocket"
)

// Handlers groups everything SetupRouter mounts.
type Handlers struct {
	Health         *controllers.HealthController
	Auth           *controllers.AuthController // nil disables POST /auth/token
	Registration   *controllers.RegistrationController
	WebSocket      *websocket.Handler
	AuthMiddleware *middleware.AuthMiddleware
}

// SetupRouter configures all application routes
func SetupRouter(router *gin.Engine, h Handlers) {
	// API version group
	v1 := router.Group("/api/v1")

	// --- Public routes ---
	v1.GET("/health", h.Health.Health)
	v1.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.Auth != nil {
		v1.POST("/auth/token", h.Auth.IssueToken)
	}

	// --- Authenticated Routes Group ---
	authenticated := v1.Group("")
	authenticated.Use(h.AuthMiddleware.JWTAuth())
	{
		authenticated.GET("/courses", h.Registration.GetCourses)
		authenticated.GET("/state", h.Registration.GetState)
		authenticated.POST("/refresh", h.Registration.Refresh)

		registrations := authenticated.Group("/registrations")
		{
			registrations.GET("", h.Registration.GetRegistrations)
			registrations.POST("", h.Registration.RegisterCourse)
			registrations.DELETE("/:courseId", h.Registration.CancelCourse)
		}

		authenticated.GET("/ws", h.WebSocket.HandleConnection)
	}
}
