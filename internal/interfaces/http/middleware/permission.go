package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groupbuy/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// PermissionConfig holds configuration for permission middleware
type PermissionConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
	// OnDenied is called when permission is denied (optional)
	OnDenied func(c *gin.Context, requiredPerms []string)
}

// RequirePermission creates middleware that requires a specific permission
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermissionWithConfig(PermissionConfig{}, permission)
}

// RequirePermissionWithConfig creates middleware with custom config
func RequirePermissionWithConfig(permission string, cfg PermissionConfig) gin.HandlerFunc {
	return RequireAnyPermissionWithConfig(cfg, permission)
}

// RequireAnyPermissionWithConfig requires at least one of permissions on the
// operator claims set by JWTAuthMiddleware
func RequireAnyPermissionWithConfig(cfg PermissionConfig, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			handlePermissionDenied(c, cfg, permissions, "No authentication claims found")
			return
		}

		if !claims.HasAnyPermission(permissions...) {
			handlePermissionDenied(c, cfg, permissions, "User lacks required permission")
			return
		}

		c.Next()
	}
}

// handlePermissionDenied handles permission denied scenarios
func handlePermissionDenied(c *gin.Context, cfg PermissionConfig, requiredPerms []string, reason string) {
	if cfg.OnDenied != nil {
		cfg.OnDenied(c, requiredPerms)
		return
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("Permission denied",
			zap.String("reason", reason),
			zap.String("user_id", GetJWTUserID(c)),
			zap.Strings("required_permissions", requiredPerms),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
	}

	c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeForbidden, "Access denied: insufficient permissions", c.GetString(RequestIDKey)))
}
