// Gin middleware for HTTP request logging and panic recovery, bridged into
// logrus so API traffic shares the agent's log format.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postwing/postwing/internal/util"
	log "github.com/sirupsen/logrus"
)

// trackedAPIPrefixes defines path prefixes that get request ID tracking.
var trackedAPIPrefixes = []string{
	"/tweet/",
	"/tweets/",
	"/user/",
	"/status",
}

// requestIDKey keys the request ID inside a request context.
type requestIDKey struct{}

// newRequestID returns a short random ID that ties one HTTP request's log
// lines together. It travels in the request context and as the request_id
// log field the formatter prints.
func newRequestID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "--------"
	}
	return hex.EncodeToString(b[:])
}

// RequestIDFromContext returns the request ID the logging middleware
// attached, or the empty string for untracked requests.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GinLogrusLogger returns a Gin middleware handler that logs HTTP requests
// and responses using logrus. It captures method, path, status code, latency,
// client IP, and any error messages.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := util.MaskSensitiveQuery(c.Request.URL.RawQuery)

		var requestID string
		if isTrackedAPIPath(path) {
			requestID = newRequestID()
			ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		latency := time.Since(start)
		if latency > time.Minute {
			latency = latency.Truncate(time.Second)
		} else {
			latency = latency.Truncate(time.Millisecond)
		}

		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if requestID == "" {
			requestID = "--------"
		}
		logLine := fmt.Sprintf("%3d | %13v | %15s | %-7s \"%s\"", statusCode, latency, clientIP, method, path)
		if errorMessage != "" {
			logLine = logLine + " | " + errorMessage
		}

		entry := log.WithField("request_id", requestID)

		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(logLine)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(logLine)
		default:
			entry.Info(logLine)
		}
	}
}

// isTrackedAPIPath checks if the given path should have request ID tracking.
func isTrackedAPIPath(path string) bool {
	for _, prefix := range trackedAPIPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GinLogrusRecovery returns a Gin middleware handler that recovers from
// panics and logs them using logrus, returning a 500 to the client.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			// Let net/http handle ErrAbortHandler so the connection is aborted without noisy stack logs.
			panic(http.ErrAbortHandler)
		}

		log.Errorf("panic recovered: %v\n%s", recovered, debug.Stack())
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
