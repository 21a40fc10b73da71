package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reservationdomain "github.com/pillstack/backoffice/internal/reservation/domain"
	"github.com/pillstack/backoffice/pkg/db/pagination"
)

type assignPromotionRequest struct {
	PromotionID string   `json:"promotion_id"`
	UserIDs     []string `json:"user_ids"`
	AssignAll   bool     `json:"assign_all"`
	Memo        string   `json:"memo"`
}

func (s *Server) AssignPromotion(c *gin.Context) {
	var req assignPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	promotionID, err := parseSnowflakeID(strings.TrimSpace(req.PromotionID))
	if err != nil {
		AbortWithError(c, newValidationError("promotion_id", "invalid_promotion_id", "invalid promotion_id"))
		return
	}

	target := reservationdomain.Target{All: req.AssignAll}
	if !req.AssignAll {
		ids := make([]snowflake.ID, 0, len(req.UserIDs))
		for _, raw := range req.UserIDs {
			id, err := parseSnowflakeID(strings.TrimSpace(raw))
			if err != nil {
				AbortWithError(c, newValidationError("user_ids", "invalid_user_id", "invalid user id"))
				return
			}
			ids = append(ids, id)
		}
		target.UserIDs = ids
	}

	resp, err := s.assignSvc.BulkAssign(c.Request.Context(), promotionID, target, strings.TrimSpace(req.Memo))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type assignPromotionSingleRequest struct {
	PromotionID string `json:"promotion_id"`
	UserID      string `json:"user_id"`
	Memo        string `json:"memo"`
}

func (s *Server) AssignPromotionSingle(c *gin.Context) {
	var req assignPromotionSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	promotionID, err := parseSnowflakeID(strings.TrimSpace(req.PromotionID))
	if err != nil {
		AbortWithError(c, newValidationError("promotion_id", "invalid_promotion_id", "invalid promotion_id"))
		return
	}
	userID, err := parseSnowflakeID(strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	resp, err := s.assignSvc.SingleAssign(c.Request.Context(), promotionID, userID, strings.TrimSpace(req.Memo))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAssignCandidates(c *gin.Context) {
	var query struct {
		BusinessNumber string `form:"business_number"`
		PharmacyName   string `form:"pharmacy_name"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.assignSvc.ListCandidates(c.Request.Context(), reservationdomain.ListCandidatesRequest{
		BusinessNumber: strings.TrimSpace(query.BusinessNumber),
		PharmacyName:   strings.TrimSpace(query.PharmacyName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPendingAssignments(c *gin.Context) {
	resp, err := s.assignSvc.ListPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelAssignment(c *gin.Context) {
	id, err := parseSnowflakeID(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reservation id"))
		return
	}

	if err := s.assignSvc.CancelReservation(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": true}})
}

func (s *Server) ListAppliedHistory(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.assignSvc.ListAppliedHistory(c.Request.Context(), reservationdomain.ListAppliedRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
