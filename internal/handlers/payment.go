package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contest-platform/internal/apperr"
	"contest-platform/internal/middleware"
	"contest-platform/internal/services"
)

type PaymentHandler struct {
	Reconciler *services.Reconciler
	logger     zerolog.Logger
}

func NewPaymentHandler(r *services.Reconciler, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{Reconciler: r, logger: logger}
}

func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.ParticipantEmail = middleware.Principal(c)

	sess, err := h.Reconciler.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Payment link created.",
		"url":       sess.URL,
		"sessionId": sess.SessionID,
	})
}

type ConfirmRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Name      string `json:"name"`
}

// Confirm is called by the participant's browser after the checkout
// redirect. Reloading the page repeats it harmlessly.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Reconciler.ConfirmPayment(c.Request.Context(), req.SessionID, services.Participant{
		Email: middleware.Principal(c),
		Name:  req.Name,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type PaymentNotification struct {
	OrderID string `json:"order_id" binding:"required"`
}

// HandlePaymentNotification is the gateway's webhook. The notification body
// is only a hint; settlement is re-read from the gateway by order ID.
func (h *PaymentHandler) HandlePaymentNotification(c *gin.Context) {
	var notification PaymentNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to bind payment notification")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification format"})
		return
	}

	res, err := h.Reconciler.ConfirmPayment(c.Request.Context(), notification.OrderID, services.Participant{})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// The contest is gone; retries will not help.
			h.logger.Warn().Err(err).Str("orderId", notification.OrderID).Msg("Notification for missing contest")
			c.JSON(http.StatusOK, gin.H{"status": "ok (contest not found)"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	switch {
	case !res.Success:
		c.JSON(http.StatusOK, gin.H{"status": "ok (not settled)"})
	case !res.Enrolled:
		c.JSON(http.StatusOK, gin.H{"status": "ok (duplicate)"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
