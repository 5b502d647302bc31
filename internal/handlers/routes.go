package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"contest-platform/internal/auth"
	"contest-platform/internal/middleware"
)

type Handlers struct {
	Auth     *AuthHandler
	Contests *ContestHandler
	Payments *PaymentHandler
	Stats    *StatsHandler
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handlers) RegisterRoutes(r *gin.Engine, verifier auth.Verifier, logger zerolog.Logger) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// All API routes under /api
	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
		}

		api.GET("/contests", h.Contests.List)
		api.GET("/contests/popular", h.Contests.Popular)
		api.GET("/contests/:id", h.Contests.Get)
		api.GET("/leaderboard", h.Stats.Leaderboard)
		api.POST("/webhook/payment", h.Payments.HandlePaymentNotification)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(verifier, logger))
		{
			protected.GET("/me", h.Auth.GetMyProfile)
			protected.PATCH("/me", h.Auth.UpdateMyProfile)
			protected.GET("/me/contests", h.Stats.MyPaidContests)
			protected.GET("/me/wins", h.Stats.MyWins)
			protected.GET("/me/win-percentage", h.Stats.WinPercentage)

			protected.GET("/users", h.Auth.ListUsers)
			protected.PATCH("/users/:email/role", h.Auth.SetRole)

			protected.POST("/contests", h.Contests.Create)
			protected.PATCH("/contests/:id", h.Contests.Update)
			protected.DELETE("/contests/:id", h.Contests.Delete)
			protected.PATCH("/contests/:id/status", h.Contests.SetStatus)
			protected.PATCH("/contests/:id/ended", h.Contests.SetEnded)
			protected.POST("/contests/:id/winner", h.Contests.DeclareWinner)
			protected.GET("/contests/:id/submissions", h.Contests.ListSubmissions)

			protected.POST("/payments/checkout", h.Payments.CreateCheckout)
			protected.POST("/payments/confirm", h.Payments.Confirm)
			protected.POST("/submissions", h.Contests.Submit)
		}
	}
}
