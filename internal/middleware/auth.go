package middleware

import (
	"net/http"

	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderAffiliateToken = "X-Affiliate-Token"
	HeaderAdminKey       = "X-Admin-Key"
	ContextTokenKey      = "affiliate_token"
)

// AuthMiddleware captures the opaque affiliate credential. Tiergate never
// validates the token itself; the backend is the authority and rejects bad
// tokens on its side.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-ID", uuid.New().String())

		token := c.GetHeader(HeaderAffiliateToken)
		if token == "" && cfg != nil && cfg.Auth.RequireToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing affiliate token"})
			c.Abort()
			return
		}

		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin key not configured"})
			c.Abort()
			return
		}
		if c.GetHeader(HeaderAdminKey) != cfg.Auth.AdminKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
