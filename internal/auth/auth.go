package auth

import (
	"context"
	"strconv"
	"strings"

	"keyledger/internal/httpx"
	"keyledger/internal/registry"

	"github.com/gin-gonic/gin"
)

// ConsumptionKey is the gin context key holding the *registry.Consumption of an authenticated request.
const ConsumptionKey = "keyledger.consumption"

// KeyValidator validates a bearer secret and records one use of it.
type KeyValidator interface {
	ValidateAndConsume(ctx context.Context, secret string) (*registry.Consumption, error)
}

// SecretFromRequest returns the API key from an "Authorization: Bearer" header or the x-api-key header.
func SecretFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}

// APIKeyMiddleware admits requests carrying a valid key and meters each one against the key's quota.
func APIKeyMiddleware(v KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := SecretFromRequest(c)
		if secret == "" {
			httpx.Abort(c, registry.ErrInvalidKey)
			return
		}

		consumption, err := v.ValidateAndConsume(c.Request.Context(), secret)
		if err != nil {
			httpx.Abort(c, err)
			return
		}

		SetQuotaHeaders(c, consumption)
		c.Set(ConsumptionKey, consumption)
		c.Next()
	}
}

// SetQuotaHeaders reports the key's quota state on the response.
func SetQuotaHeaders(c *gin.Context, consumption *registry.Consumption) {
	remaining := consumption.MonthlyLimit - consumption.Usage
	if remaining < 0 {
		remaining = 0
	}
	c.Header("X-Quota-Limit", strconv.FormatInt(consumption.MonthlyLimit, 10))
	c.Header("X-Quota-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Limit", strconv.Itoa(consumption.RateLimitPerMinute))
}

// ConsumptionFrom returns the consumption stored by APIKeyMiddleware, if any.
func ConsumptionFrom(c *gin.Context) (*registry.Consumption, bool) {
	v, ok := c.Get(ConsumptionKey)
	if !ok {
		return nil, false
	}
	consumption, ok := v.(*registry.Consumption)
	return consumption, ok
}
