package apperrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "drone-fleet/internal/errors"
)

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

var codeToStatus = map[string]int{
	domainerrors.ErrNotFound:     http.StatusNotFound,
	domainerrors.ErrValidation:   http.StatusBadRequest,
	domainerrors.ErrProtocol:     http.StatusBadRequest,
	domainerrors.ErrConflict:     http.StatusConflict,
	domainerrors.ErrUnauthorized: http.StatusUnauthorized,
	domainerrors.ErrForbidden:    http.StatusForbidden,
	domainerrors.ErrStore:        http.StatusServiceUnavailable,
	domainerrors.ErrInternal:     http.StatusInternalServerError,
}

func ToHTTPError(c *gin.Context, err error) {
	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		status, ok := codeToStatus[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorBody{
				Code:    domainErr.Code,
				Message: domainErr.Message,
				Fields:  domainErr.Fields,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorBody{
			Code:    domainerrors.ErrInternal,
			Message: "an unexpected error occurred",
		},
	})
}

// BadRequest writes a VALIDATION error for request-shape problems caught
// before a service is involved (bad path params, unparsable bodies).
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorBody{Code: domainerrors.ErrValidation, Message: msg},
	})
}

// Abort stops the handler chain with an error body. Middleware uses it for
// rejections that never reach a service.
func Abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: msg},
	})
}
