package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TrueSelph/jvcli/internal/domain/auth"
	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// identityKey is the gin context key holding the resolved caller identity.
const identityKey = "identity"

// RequireAuth resolves the bearer token into an identity and aborts with
// Unauthorized when it cannot.
func RequireAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := resolveBearer(c, authService)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(errs.Unauthorized),
				"message": errs.MessageOf(err),
			})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// OptionalAuth resolves a bearer token when present. An invalid token still
// aborts: a caller who presents credentials must present valid ones.
func OptionalAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		ident, err := resolveBearer(c, authService)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(errs.Unauthorized),
				"message": errs.MessageOf(err),
			})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// Identity returns the resolved caller identity, if any.
func Identity(c *gin.Context) (identity.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	ident, ok := value.(identity.Identity)
	return ident, ok
}

func resolveBearer(c *gin.Context, authService *auth.Service) (identity.Identity, error) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return identity.Identity{}, errs.New(errs.Unauthorized, "authorization header must be a bearer token")
	}
	return authService.Authenticate(c.Request.Context(), strings.TrimSpace(token))
}
