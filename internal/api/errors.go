package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/auth"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	}
	switch code := finance.CodeOf(err); code {
	case finance.CodeInvalidParameter:
		return http.StatusBadRequest, string(code)
	case finance.CodeInsufficientHistory:
		return http.StatusUnprocessableEntity, string(code)
	case finance.CodeSchemaMismatch:
		return http.StatusConflict, string(code)
	case finance.CodeNotFound:
		return http.StatusNotFound, string(code)
	case finance.CodeNotTrained, finance.CodeStorage:
		return http.StatusServiceUnavailable, string(code)
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError logs server-side failures and writes the error envelope.
// Internal errors are not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	auth.WriteError(w, status, code, msg)
}
