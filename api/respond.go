package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/tollgate"
)

// Stable error codes returned in error bodies.
const (
	CodeValidation       = "VALIDATION_FAILED"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeDeviceInactive   = "DEVICE_INACTIVE"
	CodeMissingAPIKey    = "MISSING_API_KEY"
	CodeInvalidClient    = "INVALID_CLIENT"
	CodeInvalidAPIKey    = "INVALID_API_KEY"
	CodeRelayFailed      = "RELAY_FAILED"
	CodePaymentFailed    = "PAYMENT_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
	CodeStoreUnreachable = "STORE_UNREACHABLE"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// FieldError is one entry of a validation failure's details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx gateway response.
type ErrorResponse struct {
	Error     string       `json:"error"`
	Code      string       `json:"code"`
	Details   []FieldError `json:"details,omitempty"`
	RelayID   string       `json:"relayId,omitempty"`
	RequestID string       `json:"requestId"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, RequestID: requestID(r)})
}

func (s *Server) writeValidation(w http.ResponseWriter, r *http.Request, details []FieldError) {
	s.logger.Warn("invalid request data",
		"request_id", requestID(r),
		"path", r.URL.Path,
		"details", details,
	)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:     "Invalid request data",
		Code:      CodeValidation,
		Details:   details,
		RequestID: requestID(r),
	})
}

// writeGatewayError maps gateway errors onto status codes and stable
// codes. Anything unrecognised is logged and reported without detail.
func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs tollgate.ValidationErrors
		verr  tollgate.ValidationError
		derr  *tollgate.DeliveryError
	)

	if tollgate.IsAuthError(err) {
		s.logger.Warn("authentication failed",
			"request_id", requestID(r),
			"remote_ip", clientIP(r),
			"error", err,
		)
	}

	switch {
	case errors.As(err, &verrs):
		s.writeValidation(w, r, fieldErrors(verrs))
	case errors.As(err, &verr):
		s.writeValidation(w, r, []FieldError{{Field: verr.Field, Message: verr.Message}})
	case errors.Is(err, tollgate.ErrInvalidInput):
		s.writeValidation(w, r, nil)
	case errors.Is(err, tollgate.ErrDeviceInactive):
		s.writeError(w, r, http.StatusForbidden, "Device is not active", CodeDeviceInactive)
	case errors.Is(err, tollgate.ErrMissingCredential):
		s.writeError(w, r, http.StatusUnauthorized, "API key required", CodeMissingAPIKey)
	case errors.Is(err, tollgate.ErrInvalidClient):
		s.writeError(w, r, http.StatusUnauthorized, "Client does not exist", CodeInvalidClient)
	case errors.Is(err, tollgate.ErrInvalidCredential):
		s.writeError(w, r, http.StatusUnauthorized, "Invalid or inactive API key", CodeInvalidAPIKey)
	case errors.As(err, &derr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:     "Failed to relay message",
			Code:      CodeRelayFailed,
			RelayID:   derr.RelayID,
			RequestID: requestID(r),
		})
	case errors.Is(err, tollgate.ErrPaymentFailed):
		s.writeError(w, r, http.StatusPaymentRequired, "Payment processing failed", CodePaymentFailed)
	case errors.Is(err, tollgate.ErrStoreClosed):
		s.writeError(w, r, http.StatusServiceUnavailable, "Database connection failed", CodeStoreUnreachable)
	case tollgate.IsRetryable(err):
		s.writeError(w, r, http.StatusServiceUnavailable, "Service temporarily unavailable", CodeUnavailable)
	default:
		s.logger.Error("internal error",
			"request_id", requestID(r),
			"path", r.URL.Path,
			"error", err,
		)
		s.writeError(w, r, http.StatusInternalServerError, "Internal server error", CodeInternal)
	}
}

func fieldErrors(verrs tollgate.ValidationErrors) []FieldError {
	out := make([]FieldError, len(verrs))
	for i, v := range verrs {
		out[i] = FieldError{Field: v.Field, Message: v.Message}
	}
	return out
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.logger.Warn("malformed request body",
			"request_id", requestID(r),
			"path", r.URL.Path,
			"error", err,
		)
		s.writeError(w, r, http.StatusBadRequest, "Malformed JSON body", CodeInvalidJSON)
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			s.writeGatewayError(w, r, err)
			return false
		}
		details := make([]FieldError, len(ves))
		for i, fe := range ves {
			details[i] = FieldError{Field: fe.Field(), Message: describe(fe)}
		}
		s.writeValidation(w, r, details)
		return false
	}
	return true
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	}
	return "failed " + fe.Tag() + " validation"
}

func slogLevelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
