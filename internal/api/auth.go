package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// tenantKey is the gin context key the auth middleware stores the tenant
// id under.
const tenantKey = "tenantID"

// MintToken signs a tenant-scoped bearer token. The tenant id rides in the
// `sub` claim.
func MintToken(secret, tenantID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("api: secret is required")
	}
	if tenantID == "" {
		return "", fmt.Errorf("api: tenant id is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tenantID,
		Issuer:    "waypost",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("api: sign token: %w", err)
	}
	return tok, nil
}

// requireTenant validates the Authorization bearer token and stores the
// tenant id for downstream handlers. Rejects non-HMAC tokens outright.
func requireTenant(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(header[len(prefix):], claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !tok.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(tenantKey, claims.Subject)
		c.Next()
	}
}

// tenantID returns the authenticated tenant for the request.
func tenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
