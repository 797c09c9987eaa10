package middleware

import (
	"net/http"
	"strings"

	"github.com/obralink/oraculo/pkg/auth"

	"github.com/gin-gonic/gin"
)

// ClientAuth authenticates API callers. The credential comes from X-API-Key
// or, for token-based providers, from Authorization: Bearer. Which validator
// runs is decided by the configured auth provider, not by the header used.
func ClientAuth(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := clientCredential(c)
		if cred == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}
		claims, err := validator.Validate(cred)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.Set("clientClaims", claims)
		c.Next()
	}
}

// ClientClaims returns the authenticated claims, nil when auth did not run.
func ClientClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get("clientClaims")
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func clientCredential(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	return bearerToken(c.GetHeader("Authorization"))
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
