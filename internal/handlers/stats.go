package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contest-platform/internal/middleware"
	"contest-platform/internal/services"
)

type StatsHandler struct {
	Stats  *services.StatsService
	logger zerolog.Logger
}

func NewStatsHandler(stats *services.StatsService, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{Stats: stats, logger: logger}
}

func (h *StatsHandler) WinPercentage(c *gin.Context) {
	stats, err := h.Stats.WinPercentage(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *StatsHandler) Leaderboard(c *gin.Context) {
	entries, err := h.Stats.Leaderboard(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *StatsHandler) MyPaidContests(c *gin.Context) {
	contests, err := h.Stats.MyPaidContests(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contests)
}

func (h *StatsHandler) MyWins(c *gin.Context) {
	wins, err := h.Stats.WinHistory(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wins)
}
