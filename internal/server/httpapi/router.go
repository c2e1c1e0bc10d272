package httpapi

import (
	"github.com/gin-gonic/gin"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))

	r.GET("/health_check", h.HealthCheck)

	auth := r.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.GET("/verify", h.VerifyEmail)
		auth.GET("/google", h.GoogleLogin)
		auth.GET("/google/callback", h.GoogleCallback)
	}

	protected := r.Group("/")
	protected.Use(h.RequireAccessToken())
	{
		protected.POST("/auth/change_password", h.ChangePassword)
		protected.GET("/health_check/protected", h.HealthCheck)
	}

	return r
}
