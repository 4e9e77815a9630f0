package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carrying the correlation id across the order pipeline. Upstream
// services (order, payment) pass it through so a ranking read can be tied
// back to the outbox event that fed it.
const TraceHeader = "X-Trace-ID"

// TraceMiddleware propagates an inbound trace id or mints one, echoing it on
// the response for the caller.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set("TraceID", traceID)
		c.Writer.Header().Set(TraceHeader, traceID)
		c.Next()
	}
}
