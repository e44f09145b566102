package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/pkg/apperrors"
)

func RoleGuard(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(roleKey)
		if _, ok := allowed[role]; ok {
			c.Next()
			return
		}

		slog.WarnContext(c.Request.Context(), "role not allowed on route",
			slog.String("sub", c.GetString(subjectKey)),
			slog.String("role", role),
			slog.String("route", c.FullPath()),
		)
		apperrors.Abort(c, http.StatusForbidden, domainerrors.ErrForbidden, "this role may not use "+c.Request.Method+" "+c.FullPath())
	}
}
