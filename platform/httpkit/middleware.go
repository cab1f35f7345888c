// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"leadmarket_backend/platform/config"
	"leadmarket_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// ContextSubjectIDKey is the gin context key for the token subject.
	ContextSubjectIDKey = "subjectID"
	// ContextRolesKey is the gin context key for the caller's roles.
	ContextRolesKey = "roles"
	// ContextAgencyIDKey is the gin context key for the agency scope.
	ContextAgencyIDKey = "agencyID"

	// RequestIDHeader carries the request correlation ID.
	RequestIDHeader = "X-Request-ID"

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

// RequestID ensures each request has a correlation ID and stores it on the
// request context for logger.WithContext.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs HTTP requests with timing.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		l := log.WithContext(c.Request.Context())
		if status >= http.StatusInternalServerError && len(c.Errors) > 0 {
			l.HTTPError(c.Request.Method, path, status, c.Errors.Last().Err, c.ClientIP())
			return
		}
		l.HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), c.ClientIP())
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// KeyedRateLimiter manages one token bucket per key (client IP, portal ID).
type KeyedRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewKeyedRateLimiter creates a limiter handing out r tokens per second per key.
func NewKeyedRateLimiter(r rate.Limit, burst int, log *logger.Logger) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

// PerMinute builds a limiter allowing n requests per minute per key, burst n.
func PerMinute(n int, log *logger.Logger) *KeyedRateLimiter {
	if n <= 0 {
		return NewKeyedRateLimiter(rate.Inf, 1, log)
	}
	return NewKeyedRateLimiter(rate.Limit(float64(n)/60.0), n, log)
}

// Allow reports whether key may proceed now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	limiter, _ := k.limiters.LoadOrStore(key, rate.NewLimiter(k.rate, k.burst))
	return limiter.(*rate.Limiter).Allow()
}

// RateLimit returns a middleware limiting requests by the key keyFn extracts.
func (k *KeyedRateLimiter) RateLimit(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if !k.Allow(key) {
			if k.log != nil {
				k.log.RateLimitExceeded(key, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthRequired returns middleware that validates HS256 access tokens.
// Claims: sub (uuid), roles ([]string), agency_id (uuid, optional).
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, errMissingToken)
			return
		}

		claims, err := parseAccessClaims(rawToken, cfg)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		subjectID, err := uuid.Parse(stringClaim(claims, "sub"))
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		c.Set(ContextSubjectIDKey, subjectID)
		c.Set(ContextRolesKey, extractRoles(claims["roles"]))

		if raw := stringClaim(claims, "agency_id"); raw != "" {
			agencyID, err := uuid.Parse(raw)
			if err != nil {
				abortUnauthorized(c, errInvalidToken)
				return
			}
			c.Set(ContextAgencyIDKey, agencyID)
			ctx := context.WithValue(c.Request.Context(), logger.AgencyIDKey, agencyID.String())
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireRole returns middleware that checks if the caller has the specified role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

func extractRoles(value interface{}) []string {
	roles := make([]string, 0)
	switch typed := value.(type) {
	case []string:
		return append(roles, typed...)
	case []interface{}:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				roles = append(roles, text)
			}
		}
	}
	return roles
}

func extractBearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	rawToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func parseAccessClaims(rawToken string, cfg config.JWTConfig) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(cfg.GetJWTAccessSecret()), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, errors.New(errInvalidToken)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New(errInvalidToken)
	}

	if tokenType := stringClaim(claims, "type"); tokenType != "access" {
		return nil, errors.New(errInvalidToken)
	}

	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: message})
}
