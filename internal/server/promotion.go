package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	promotiondomain "github.com/pillstack/backoffice/internal/promotion/domain"
)

func (s *Server) ListPromotions(c *gin.Context) {
	var query struct {
		ActiveOnly       bool `form:"active_only"`
		FirstPaymentOnly bool `form:"first_payment_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalog.List(c.Request.Context(), promotiondomain.ListPromotionRequest{
		ActiveOnly:       query.ActiveOnly,
		FirstPaymentOnly: query.FirstPaymentOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPromotionByID(c *gin.Context) {
	id, err := parseSnowflakeID(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid promotion id"))
		return
	}

	resp, err := s.catalog.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
