package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/pkg/apperrors"
)

type clientLimiter interface {
	Allow(ctx context.Context, client string) (bool, error)
}

// RateLimit keys clients by IP since it runs ahead of Auth. Limiter failures
// let the request through.
func RateLimit(limiter clientLimiter, window time.Duration) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		client := c.ClientIP()

		allowed, err := limiter.Allow(ctx, client)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "rate limiter unavailable, admitting request",
				slog.String("ip", client),
				slog.String("error", err.Error()),
			)
		case !allowed:
			slog.WarnContext(ctx, "client over request budget",
				slog.String("ip", client),
				slog.String("path", c.Request.URL.Path),
			)
			c.Header("Retry-After", retryAfter)
			apperrors.Abort(c, http.StatusTooManyRequests, "RATE_LIMITED", "request budget exhausted, retry after "+retryAfter+"s")
			return
		}

		c.Next()
	}
}
