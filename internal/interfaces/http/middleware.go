package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	userHeader = "X-User-ID"
	actorKey   = "actor"
)

// actorMiddleware loads the acting user named by the X-User-ID header
func actorMiddleware(users port.UserRepository, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(userHeader), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid " + userHeader + " header",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			logger.Error("Failed to load acting user", "user_id", id, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "internal error",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "unknown user",
			})
			return
		}

		c.Set(actorKey, user)
		c.Next()
	}
}

// requireAdmin rejects non-admin actors
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "admin role required",
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) *entity.User {
	return c.MustGet(actorKey).(*entity.User)
}
