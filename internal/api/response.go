package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/mining"
	"github.com/Veraticus/finrules/internal/storage"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes an error envelope with the given status.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondOK writes payload with status 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondErr maps engine and storage errors to a status and code.
func respondErr(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondError(c, status, code, err)
}

var badRequest = []error{
	common.ErrInvalidInput,
	common.ErrInvalidRule,
	mining.ErrInvalidOptions,
	storage.ErrEmptyString,
	storage.ErrNilParameter,
	storage.ErrEmptySlice,
	storage.ErrInvalidTransaction,
	storage.ErrInvalidRule,
	storage.ErrInvalidFeedback,
	storage.ErrInvalidSuggestion,
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, common.ErrDuplicateEntry):
		return http.StatusConflict, "duplicate"
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest, "invalid_input"
		}
	}
	return http.StatusInternalServerError, "internal"
}
