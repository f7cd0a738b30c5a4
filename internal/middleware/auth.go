package middleware

import (
	"errors"
	"net/http"
	"strings"

	"storeapi/internal/pkg/response"
	"storeapi/internal/token"

	"github.com/gin-gonic/gin"
)

// JWTAuth authenticates the request from the Authorization bearer token
// and populates user_id/role/email/fingerprint in the context. Expired,
// tampered and blacklisted tokens map to distinct 401 codes so clients
// can tell a refreshable session from a revoked one.
func JWTAuth(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing Authorization header")
			return
		}

		if !strings.HasPrefix(h, "Bearer ") {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Authorization header")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if tokenStr == "" {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Empty token")
			return
		}

		claims, err := tokens.VerifyAccess(c.Request.Context(), tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				response.AbortError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Access token has expired")
			case errors.Is(err, token.ErrBlacklisted):
				response.AbortError(c, http.StatusUnauthorized, "TOKEN_BLACKLISTED", "Access token has been revoked")
			default:
				response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			}
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("email", claims.Email)
		c.Set("fingerprint", claims.Fingerprint)
		c.Set("access_token", tokenStr)

		c.Next()
	}
}

// RequireRole ensures that the authenticated user has the specified role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Role not found in token")
			return
		}

		if role.(string) != requiredRole {
			response.AbortError(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
			return
		}

		c.Next()
	}
}

// AdminOnly middleware requires admin role
func AdminOnly() gin.HandlerFunc {
	return RequireRole("admin")
}
