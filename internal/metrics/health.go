package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// HealthHandler runs every check with a short timeout and reports 503 if any fails.
func HealthHandler(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		services := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				services[name] = gin.H{"status": "unhealthy", "error": err.Error()}
				status = http.StatusServiceUnavailable
				continue
			}
			services[name] = gin.H{"status": "healthy"}
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":    overall,
			"timestamp": time.Now().UTC(),
			"services":  services,
		})
	}
}
