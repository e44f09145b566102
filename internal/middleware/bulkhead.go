package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/pkg/apperrors"
)

// Bulkhead caps concurrent handlers per named pool. A drone socket holds its
// slot until it disconnects.
func Bulkhead(pool string, capacity int) gin.HandlerFunc {
	slots := make(chan struct{}, capacity)

	return func(c *gin.Context) {
		select {
		case slots <- struct{}{}:
		default:
			slog.WarnContext(c.Request.Context(), "bulkhead full",
				slog.String("pool", pool),
				slog.Int("capacity", capacity),
				slog.String("path", c.Request.URL.Path),
			)
			apperrors.Abort(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", pool+" pool is at capacity")
			return
		}
		defer func() { <-slots }()
		c.Next()
	}
}
