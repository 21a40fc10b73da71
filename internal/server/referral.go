package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type redeemReferralRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

func (s *Server) RedeemReferral(c *gin.Context) {
	var req redeemReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		AbortWithError(c, newValidationError("code", "invalid_code", "invalid referral code"))
		return
	}
	userID, err := parseSnowflakeID(strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	resp, err := s.assignSvc.RedeemReferral(c.Request.Context(), code, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
