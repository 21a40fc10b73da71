package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/pillstack/backoffice/internal/payment/domain"
)

type paymentEventRequest struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	UserID     string `json:"user_id"`
	BaseAmount int64  `json:"base_amount"`
	OccurredAt string `json:"occurred_at"`
}

// IngestPaymentEvent accepts gateway notifications. Only payment_succeeded
// is acted on; other event types are acknowledged so the gateway stops
// retrying them.
func (s *Server) IngestPaymentEvent(c *gin.Context) {
	var req paymentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		eventType = paymentdomain.EventTypePaymentSucceeded
	}
	if eventType != paymentdomain.EventTypePaymentSucceeded {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"ignored": true, "event_type": eventType}})
		return
	}

	userID, err := parseSnowflakeID(strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	var occurredAt time.Time
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		occurredAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("occurred_at", "invalid_occurred_at", "invalid occurred_at"))
			return
		}
	}

	resp, err := s.payments.IngestSucceeded(c.Request.Context(), paymentdomain.SucceededEvent{
		ProviderEventID: strings.TrimSpace(req.EventID),
		UserID:          userID,
		BaseAmount:      req.BaseAmount,
		OccurredAt:      occurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
