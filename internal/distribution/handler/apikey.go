package handler

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/platform/httpkit"
	"leadmarket_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// PortalAPIKeyHeader authenticates intake calls.
	PortalAPIKeyHeader = "X-Portal-API-Key"

	contextPortalKey = "intakePortal"
	keyPrefixLen     = 12 // "lpk_" + 8 hex chars
)

// GenerateAPIKey creates a new random portal key and returns the plaintext
// key, its hash and a display prefix. Only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "lpk_" + hex.EncodeToString(bytes)
	return plaintext, HashKey(plaintext), plaintext[:keyPrefixLen], nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// PortalAPIKeyAuth resolves the calling portal from its API key.
func PortalAPIKeyAuth(portals repository.PortalStore, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(PortalAPIKeyHeader)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: "missing API key"})
			return
		}

		portal, err := portals.GetPortalByKeyHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			log.WithContext(c.Request.Context()).AuthEvent("portal_api_key", apiKey[:min(len(apiKey), keyPrefixLen)], false, err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: "invalid API key"})
			return
		}

		c.Set(contextPortalKey, portal)
		ctx := context.WithValue(c.Request.Context(), logger.PortalIDKey, portal.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PortalFromContext returns the portal set by PortalAPIKeyAuth.
func PortalFromContext(c *gin.Context) (domain.Portal, bool) {
	v, ok := c.Get(contextPortalKey)
	if !ok {
		return domain.Portal{}, false
	}
	p, ok := v.(domain.Portal)
	return p, ok
}

// ByPortal keys rate limits on the authenticated portal.
func ByPortal(c *gin.Context) string {
	if p, ok := PortalFromContext(c); ok {
		return "portal:" + p.ID.String()
	}
	return "ip:" + c.ClientIP()
}
