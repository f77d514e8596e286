package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"courier.chat/relay/common/logger"
)

type contextKey string

const (
	userIDHeader    = "X-User-Id"
	projectIDHeader = "X-Project-Id"
	adminKeyHeader  = "X-Admin-Key"

	userContextKey    contextKey = "user_id"
	projectContextKey contextKey = "project_id"
)

// RequireUser resolves the caller identity established by the auth gateway
// upstream of this service. Requests without one are rejected.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(userIDHeader), 10, 64)
		if err != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		projectID, _ := strconv.ParseInt(c.GetHeader(projectIDHeader), 10, 64)

		ctx := context.WithValue(c.Request.Context(), userContextKey, userID)
		ctx = context.WithValue(ctx, projectContextKey, projectID)
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			UserID:    logger.Ptr(userID),
			ProjectID: logger.Ptr(projectID),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireAdminKey guards operational endpoints behind a static header key.
// An empty configured key disables the surface entirely.
func RequireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(adminKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, zero when absent.
func GetUserID(ctx context.Context) int64 {
	userID, _ := ctx.Value(userContextKey).(int64)
	return userID
}

// GetProjectID returns the caller's project scope, zero when absent.
func GetProjectID(ctx context.Context) int64 {
	projectID, _ := ctx.Value(projectContextKey).(int64)
	return projectID
}
