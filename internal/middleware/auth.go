package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contest-platform/internal/auth"
)

// PrincipalKey is the gin context key holding the verified email.
const PrincipalKey = "principal"

func AuthMiddleware(verifier auth.Verifier, logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "auth").Logger()
	return func(c *gin.Context) {
		// Get Authorization Header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("No auth header found")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		// Check if it's a Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			logger.Debug().Msg("Auth header format is not Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		email, err := verifier.Verify(c.Request.Context(), parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("Token verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(PrincipalKey, email)
		c.Next()
	}
}

// Principal returns the verified email set by AuthMiddleware.
func Principal(c *gin.Context) string {
	return c.GetString(PrincipalKey)
}
