package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/scrapetrack/internal/api/middleware"
	"github.com/timmy/scrapetrack/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// LocalStateApplied is set when the remote log update failed after the session advanced.
	LocalStateApplied bool `json:"localStateApplied,omitempty"`
}

// statusFor maps domain errors to HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrImportFormat):
		return http.StatusBadRequest, "invalid_import"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound, "record_not_found"
	case errors.Is(err, domain.ErrItemAlreadyProcessed):
		return http.StatusConflict, "item_already_processed"
	case errors.Is(err, domain.ErrUnknownItem):
		return http.StatusConflict, "unknown_item"
	case errors.Is(err, domain.ErrRemoteLog):
		return http.StatusBadGateway, "remote_log_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		middleware.GetLogger(c).WithError(err).Error("Request handler failed")
	}
	resp := ErrorResponse{Error: err.Error(), Code: code}
	var rerr *domain.RemoteLogError
	if errors.As(err, &rerr) && rerr.Op == "update" {
		resp.LocalStateApplied = true
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}
