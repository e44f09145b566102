package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/pkg/apperrors"
)

const idempotencyHeader = "Idempotency-Key"

type idempotencyStore interface {
	Check(ctx context.Context, callerID, key string) ([]byte, bool, error)
	Set(ctx context.Context, callerID, key string, response []byte) error
}

// cachedResponse is what gets stored per key, so a replay carries the
// first status code.
type cachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// responseRecorder captures the response body so we can store it.
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the caller and the route.
func Idempotency(store idempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		callerID := c.GetString(subjectKey)
		scoped := c.Request.Method + " " + c.FullPath() + " " + key
		ctx := c.Request.Context()

		raw, found, err := store.Check(ctx, callerID, scoped)
		if err != nil {
			slog.ErrorContext(ctx, "idempotency check failed",
				slog.String("error", err.Error()),
			)
			// fail open
			c.Next()
			return
		}

		if found {
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				c.Header("Idempotent-Replay", "true")
				c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
				c.Abort()
				return
			}
			slog.WarnContext(ctx, "discarding unreadable idempotent response", slog.String("key", key))
		}

		rec := &responseRecorder{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		encoded, err := json.Marshal(cachedResponse{Status: status, Body: rec.body.Bytes()})
		if err != nil {
			slog.ErrorContext(ctx, "idempotency encode failed", slog.String("error", err.Error()))
			return
		}
		if err := store.Set(ctx, callerID, scoped, encoded); err != nil {
			slog.ErrorContext(ctx, "idempotency store failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// RequireIdempotencyKey rejects mutations sent without an Idempotency-Key.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if c.GetHeader(idempotencyHeader) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "VALIDATION",
					Message: "Idempotency-Key header is required",
				},
			})
			return
		}

		c.Next()
	}
}
