package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	pointsdomain "github.com/smallbiznis/reserva/internal/points/domain"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
)

// GetPoints returns the scalar balance, or the full statement when the
// caller asks for entries=true.
func (s *Server) GetPoints(c *gin.Context) {
	customerID, err := parseSnowflakeParam(c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	var query struct {
		pagination.Pagination
		Entries     string `form:"entries"`
		CreatedFrom string `form:"created_from"`
		CreatedTo   string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	withEntries, err := parseOptionalBool(query.Entries)
	if err != nil {
		AbortWithError(c, newValidationError("entries", "invalid_entries", "invalid entries"))
		return
	}

	tenantID := tenantFromContext(c)

	if withEntries == nil || !*withEntries {
		balance, err := s.pointsSvc.GetBalance(c.Request.Context(), pointsdomain.GetBalanceRequest{
			TenantID:   tenantID,
			CustomerID: customerID,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": balance}})
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}

	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}

	resp, err := s.pointsSvc.GetStatement(c.Request.Context(), pointsdomain.GetStatementRequest{
		TenantID:    tenantID,
		CustomerID:  customerID,
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
		PageToken:   query.PageToken,
		PageSize:    int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type appendPointsRequest struct {
	Direction string `json:"direction"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

func (s *Server) AppendPointsEntry(c *gin.Context) {
	customerID, err := parseSnowflakeParam(c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	var req appendPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	appendReq := pointsdomain.AppendRequest{
		TenantID:   tenantFromContext(c),
		CustomerID: customerID,
		Amount:     req.Amount,
		Reason:     strings.TrimSpace(req.Reason),
	}

	var entry ledgerdomain.PointsEntry
	switch strings.ToLower(strings.TrimSpace(req.Direction)) {
	case "deposit":
		entry, err = s.pointsSvc.Deposit(c.Request.Context(), appendReq)
	case "withdraw":
		entry, err = s.pointsSvc.Withdraw(c.Request.Context(), appendReq)
	default:
		AbortWithError(c, newValidationError("direction", "invalid_direction", "direction must be deposit or withdraw"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}
