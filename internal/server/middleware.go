package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	HeaderTenant        = "X-Tenant-ID"
	contextTenantIDKey  = "tenant_id"
	contextRequestIDKey = "request_id"
)

// TenantRequired resolves the caller's tenant from the X-Tenant-ID header.
// Handlers copy the resolved id into the request structs they pass down;
// services never read it from context themselves.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, newValidationError("tenant_id", "missing_tenant", "missing X-Tenant-ID header"))
			return
		}

		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid X-Tenant-ID header"))
			return
		}

		c.Set(contextTenantIDKey, tenantID)
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextTenantIDKey)
	if !ok {
		return 0
	}
	tenantID, ok := value.(snowflake.ID)
	if !ok {
		return 0
	}
	return tenantID
}
