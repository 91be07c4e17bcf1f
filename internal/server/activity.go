package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/reserva/internal/activity/domain"
)

func (s *Server) GetActivityFeed(c *gin.Context) {
	customerID, err := parseSnowflakeParam(c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	var query struct {
		Kind   string `form:"kind"`
		Search string `form:"search"`
		Bucket string `form:"bucket"`
		Limit  int    `form:"limit"`
		Offset int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.activitySvc.GetActivityFeed(c.Request.Context(), activitydomain.FeedRequest{
		TenantID:   tenantFromContext(c),
		CustomerID: customerID,
		Kind:       activitydomain.Kind(strings.TrimSpace(query.Kind)),
		Search:     strings.TrimSpace(query.Search),
		Bucket:     activitydomain.Bucket(strings.TrimSpace(query.Bucket)),
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
