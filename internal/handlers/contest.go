package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contest-platform/internal/apperr"
	"contest-platform/internal/middleware"
	"contest-platform/internal/models"
	"contest-platform/internal/services"
	"contest-platform/internal/store"
)

type ContestHandler struct {
	Contests    *services.ContestService
	Submissions *services.SubmissionService
	logger      zerolog.Logger
}

func NewContestHandler(contests *services.ContestService, submissions *services.SubmissionService, logger zerolog.Logger) *ContestHandler {
	return &ContestHandler{Contests: contests, Submissions: submissions, logger: logger}
}

func (h *ContestHandler) List(c *gin.Context) {
	contests, err := h.Contests.List(c.Request.Context(), store.ContestFilter{
		CreatorEmail: c.Query("creatorEmail"),
		Status:       models.ContestStatus(c.Query("status")),
		Type:         c.Query("type"),
		Search:       c.Query("search"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contests)
}

func (h *ContestHandler) Popular(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, fmt.Errorf("%w: limit must be a number", apperr.ErrValidation))
			return
		}
		limit = n
	}

	contests, err := h.Contests.Popular(c.Request.Context(), limit, models.ContestStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contests)
}

func (h *ContestHandler) Get(c *gin.Context) {
	contest, err := h.Contests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contest)
}

func (h *ContestHandler) Create(c *gin.Context) {
	var req models.ContestFields
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	contest, err := h.Contests.Create(c.Request.Context(), middleware.Principal(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, contest)
}

func (h *ContestHandler) Update(c *gin.Context) {
	var req models.ContestFields
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	contest, err := h.Contests.Update(c.Request.Context(), middleware.Principal(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, contest)
}

func (h *ContestHandler) Delete(c *gin.Context) {
	if err := h.Contests.Delete(c.Request.Context(), middleware.Principal(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contest deleted."})
}

type StatusRequest struct {
	Status models.ContestStatus `json:"status" binding:"required"`
}

func (h *ContestHandler) SetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.Contests.SetStatus(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated.", "status": req.Status})
}

type EndedRequest struct {
	IsEnded *bool `json:"isEnded" binding:"required"`
}

func (h *ContestHandler) SetEnded(c *gin.Context) {
	var req EndedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.Contests.SetEndedAs(c.Request.Context(), middleware.Principal(c), c.Param("id"), *req.IsEnded)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contest updated.", "isEnded": *req.IsEnded})
}

func (h *ContestHandler) DeclareWinner(c *gin.Context) {
	var req services.WinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rec, err := h.Submissions.DeclareWinner(c.Request.Context(), middleware.Principal(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *ContestHandler) ListSubmissions(c *gin.Context) {
	subs, err := h.Submissions.Submissions(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *ContestHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub, err := h.Submissions.Submit(c.Request.Context(), middleware.Principal(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}
