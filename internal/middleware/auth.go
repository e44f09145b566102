package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/jwt"
	"drone-fleet/internal/pkg/apperrors"
)

type tokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

var publicPaths = map[string]bool{
	"/auth/token": true,
	"/health":     true,
}

// Drones and dashboards connect over websockets, which carry no bearer header.
func isPublic(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, "/ws/")
}

func Auth(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			apperrors.Abort(c, http.StatusUnauthorized, domainerrors.ErrUnauthorized, "a bearer token is required")
			return
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "operator token rejected",
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
				slog.String("error", err.Error()),
			)
			apperrors.Abort(c, http.StatusUnauthorized, domainerrors.ErrUnauthorized, "invalid or expired token")
			return
		}

		c.Set(subjectKey, claims.Sub)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}
