package middleware

import (
	"fightzone/backend/pkg/errors"
	"fightzone/backend/pkg/jwt"
	"fightzone/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenDenylist reports whether a token ID was revoked (e.g. by logout)
type TokenDenylist interface {
	IsDenied(tokenID string) bool
}

// JWTAuthMiddleware checks that the request has a valid JWT and adds claims to the context
func JWTAuthMiddleware(jwtService *jwt.Service, denylist TokenDenylist, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		// Strip "Bearer " prefix if present
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		// Validate token
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid JWT token", "error", err.Error())
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		// Reject tokens revoked by logout
		if denylist != nil && claims.ID != "" && denylist.IsDenied(claims.ID) {
			c.Error(errors.NewUnauthorizedError("TOKEN_REVOKED", "Token has been revoked"))
			c.Abort()
			return
		}

		// Add claims to context
		c.Set("claims", claims)
		c.Set("userId", claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Set("username", claims.Username)

		c.Next()
	}
}
