// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RespondError maps errors to RFC7807 responses. *shared.Error values keep
// their status and kind; anything else is an opaque 500.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *shared.Error
	switch {
	case errors.As(err, &appErr):
		status := appErr.Status()
		JSON(w, status, ProblemDetail{
			Title:     http.StatusText(status),
			Status:    status,
			Detail:    shared.UserSafeMessage(appErr),
			Code:      string(appErr.Kind),
			Errors:    appErr.Fields,
			Retryable: appErr.Kind.Retryable(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusServiceUnavailable, "Request Timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; the status is only for logs.
		w.WriteHeader(499)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Fail logs server-side failures and renders err.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if logger != nil && statusOf(err) >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	RespondError(w, err)
}

func statusOf(err error) int {
	var appErr *shared.Error
	if errors.As(err, &appErr) {
		return appErr.Status()
	}
	if errors.Is(err, context.Canceled) {
		return 499
	}
	return http.StatusInternalServerError
}
