package logger

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware returns a gin middleware that attaches a request-scoped
// logger and logs every request on completion
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
		}

		// Chat and access requests carry a room in the query string;
		// scoping it here lets log lines be filtered per event room
		reqLogger := logger.WithRequestID(requestID).WithRoom(c.Query("room"))
		c.Set("logger", reqLogger)

		start := time.Now()
		c.Next()

		// Auth middleware runs inside c.Next(), so the user id is only
		// known after the handler chain finishes
		if userID, exists := c.Get("userId"); exists {
			reqLogger = reqLogger.WithUserID(fmt.Sprintf("%v", userID))
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Successful history polls are the bulk of traffic and say
		// nothing on their own; keep them out of the info stream
		if method == http.MethodGet && status < http.StatusBadRequest && strings.HasSuffix(path, "/chat/messages") {
			reqLogger.Debug("request completed",
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		} else {
			reqLogger.LogRequest(method, path, status, latency)
		}

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", method,
				"path", path,
				"error_type", err.Type,
			)
		}
	}
}
