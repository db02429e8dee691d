package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTenant    = "X-Tenant-ID"
)

// RequestID propagates the caller's request id or mints one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// tenantID resolves the tenant from the header or the query string.
func tenantID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderTenant)); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("tenant_id"))
}
