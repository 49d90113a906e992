package middleware

import (
	"net/http"
	"strings"

	"sendcash-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminTokenValidator verifies admin bearer tokens
type AdminTokenValidator interface {
	ValidateToken(tokenString string) (*handlers.AdminJWTClaims, error)
}

// AdminAuthMiddleware admin authentication middleware
type AdminAuthMiddleware struct {
	validator AdminTokenValidator
	logger    *logrus.Logger
}

// NewAdminAuthMiddleware creates the admin authentication middleware
func NewAdminAuthMiddleware(validator AdminTokenValidator, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{validator: validator, logger: logger}
}

// RequireAdminAuth requires a valid admin bearer token
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || strings.TrimPrefix(authHeader, "Bearer ") == "" {
			a.logger.WithFields(fields).Warn("Admin auth failed - missing bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"code":    "MISSING_AUTH_HEADER",
			})
			return
		}

		claims, err := a.validator.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			fields["error"] = err.Error()
			a.logger.WithFields(fields).Warn("Admin auth failed - invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		if claims.Role != "admin" {
			fields["role"] = claims.Role
			a.logger.WithFields(fields).Warn("Admin auth failed - insufficient permissions")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Insufficient permissions",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}
