package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	holdingdomain "github.com/smallbiznis/reserva/internal/holding/domain"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
)

type grantHoldingRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int64  `json:"quantity"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) GrantHolding(c *gin.Context) {
	customerID, err := parseSnowflakeParam(c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	var req grantHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID, err := parseSnowflakeParam(req.ProductID)
	if err != nil {
		AbortWithError(c, newValidationError("product_id", "invalid_product_id", "invalid product_id"))
		return
	}

	resp, err := s.holdingSvc.Grant(c.Request.Context(), holdingdomain.GrantRequest{
		TenantID:       tenantFromContext(c),
		CustomerID:     customerID,
		ProductID:      productID,
		Quantity:       req.Quantity,
		Reason:         strings.TrimSpace(req.Reason),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replay {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListHoldings(c *gin.Context) {
	customerID, err := parseSnowflakeParam(c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	resp, err := s.holdingSvc.ListByCustomer(c.Request.Context(), tenantFromContext(c), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetHolding(c *gin.Context) {
	holdingID, err := parseSnowflakeParam(c.Param("holding_id"))
	if err != nil {
		AbortWithError(c, newValidationError("holding_id", "invalid_holding_id", "invalid holding_id"))
		return
	}

	resp, err := s.holdingSvc.Get(c.Request.Context(), tenantFromContext(c), holdingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type adjustHoldingRequest struct {
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) AdjustHolding(c *gin.Context) {
	holdingID, err := parseSnowflakeParam(c.Param("holding_id"))
	if err != nil {
		AbortWithError(c, newValidationError("holding_id", "invalid_holding_id", "invalid holding_id"))
		return
	}

	var req adjustHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.holdingSvc.Adjust(c.Request.Context(), holdingdomain.AdjustRequest{
		TenantID:       tenantFromContext(c),
		HoldingID:      holdingID,
		Amount:         req.Amount,
		Reason:         strings.TrimSpace(req.Reason),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveHolding(c *gin.Context) {
	holdingID, err := parseSnowflakeParam(c.Param("holding_id"))
	if err != nil {
		AbortWithError(c, newValidationError("holding_id", "invalid_holding_id", "invalid holding_id"))
		return
	}

	if err := s.holdingSvc.Remove(c.Request.Context(), tenantFromContext(c), holdingID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": true}})
}

func (s *Server) ListHoldingEntries(c *gin.Context) {
	holdingID, err := parseSnowflakeParam(c.Param("holding_id"))
	if err != nil {
		AbortWithError(c, newValidationError("holding_id", "invalid_holding_id", "invalid holding_id"))
		return
	}

	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.holdingSvc.ListEntries(c.Request.Context(), holdingdomain.ListEntriesRequest{
		TenantID:  tenantFromContext(c),
		HoldingID: holdingID,
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerHoldingEntries(c *gin.Context) {
	customerID, err := parseSnowflakeParam(c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.holdingSvc.ListEntries(c.Request.Context(), holdingdomain.ListEntriesRequest{
		TenantID:   tenantFromContext(c),
		CustomerID: customerID,
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type annotateEntryRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) AnnotateLedgerEntry(c *gin.Context) {
	entryID, err := parseSnowflakeParam(c.Param("entry_id"))
	if err != nil {
		AbortWithError(c, newValidationError("entry_id", "invalid_entry_id", "invalid entry_id"))
		return
	}

	var req annotateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.holdingSvc.AnnotateEntry(c.Request.Context(), tenantFromContext(c), entryID, req.Notes); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"annotated": true}})
}

type correctHoldingRequest struct {
	Fragment      string `json:"fragment"`
	Replacement   string `json:"replacement"`
	DeltaOverride string `json:"delta_override"`
}

// CorrectHoldingEntry is the deprecated text-match correction endpoint.
// A miss is reported as matched=false rather than an error so that legacy
// callers keep their fire-and-forget semantics.
func (s *Server) CorrectHoldingEntry(c *gin.Context) {
	holdingID, err := parseSnowflakeParam(c.Param("holding_id"))
	if err != nil {
		AbortWithError(c, newValidationError("holding_id", "invalid_holding_id", "invalid holding_id"))
		return
	}

	var req correctHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	deltaOverride, err := parseOptionalInt64(req.DeltaOverride)
	if err != nil {
		AbortWithError(c, newValidationError("delta_override", "invalid_delta_override", "invalid delta_override"))
		return
	}

	entry, err := s.holdingSvc.CorrectByTextMatch(c.Request.Context(), holdingdomain.CorrectRequest{
		TenantID:      tenantFromContext(c),
		HoldingID:     holdingID,
		Fragment:      req.Fragment,
		Replacement:   req.Replacement,
		DeltaOverride: deltaOverride,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if entry == nil {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"matched": false}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"matched": true, "entry": entry}})
}
