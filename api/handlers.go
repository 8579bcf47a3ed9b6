package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/receiver"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/retry"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

// ──────────────────────────────────────────────────
// Health
// ──────────────────────────────────────────────────

// HealthResponse is returned by /health and /ready.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.Ping(r.Context()); err != nil {
		s.logger.Error("store unreachable", "request_id", requestID(r), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "Error",
			Error:  "Database connection failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "Ok",
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	})
}

// ──────────────────────────────────────────────────
// Telemetry
// ──────────────────────────────────────────────────

// PingRequest is the telemetry ping body.
type PingRequest struct {
	DeviceID  string  `json:"deviceId"  validate:"required"`
	Metric    string  `json:"metric"    validate:"required"`
	Value     *string `json:"value"     validate:"required"`
	Status    string  `json:"status"    validate:"required,oneof=OK ERROR DOWN WARN"`
	Timestamp string  `json:"ts"        validate:"required"`
	EventID   string  `json:"eventId"   validate:"required"`
}

// PingResponse acknowledges a telemetry ping.
type PingResponse struct {
	Message     string `json:"message"`
	TelemetryID string `json:"telemetryId"`
	RequestID   string `json:"requestId"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req PingRequest
	if !s.decode(w, r, &req) {
		return
	}

	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		s.writeValidation(w, r, []FieldError{{Field: "ts", Message: "must be an RFC 3339 timestamp"}})
		return
	}

	s.logger.Info("processing telemetry ping",
		"request_id", requestID(r),
		"device_id", req.DeviceID,
		"event_id", req.EventID,
	)

	res, err := s.gw.IngestTelemetry(r.Context(), tollgate.TelemetryInput{
		DeviceID:  req.DeviceID,
		Metric:    req.Metric,
		Value:     *req.Value,
		Status:    telemetry.Status(req.Status),
		Timestamp: ts,
		EventID:   req.EventID,
	})
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	msg := "Telemetry processed successfully"
	if res.Replayed {
		msg = "Telemetry already processed"
	}
	writeJSON(w, http.StatusOK, PingResponse{
		Message:     msg,
		TelemetryID: res.TelemetryID.String(),
		RequestID:   requestID(r),
	})
}

// ──────────────────────────────────────────────────
// Relay
// ──────────────────────────────────────────────────

// PublishRequest is the relay publish body.
type PublishRequest struct {
	ClientID string         `json:"clientId" validate:"required"`
	Message  string         `json:"message"  validate:"required"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PublishResponse reports the relay record a publish resolved to.
type PublishResponse struct {
	Message   string       `json:"message"`
	RelayID   string       `json:"relayId"`
	Status    relay.Status `json:"status,omitempty"`
	RequestID string       `json:"requestId"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		s.writeGatewayError(w, r, tollgate.ErrMissingCredential)
		return
	}

	var req PublishRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.gw.Publish(r.Context(), tollgate.PublishInput{
		ClientID:       req.ClientID,
		Message:        req.Message,
		Meta:           req.Meta,
		APIKey:         apiKey,
		IdempotencyKey: r.Header.Get("x-idempotency-key"),
	})
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	if res.Replayed {
		writeJSON(w, http.StatusOK, PublishResponse{
			Message:   "Message already processed",
			RelayID:   res.RelayID.String(),
			Status:    res.Status,
			RequestID: requestID(r),
		})
		return
	}
	writeJSON(w, http.StatusOK, PublishResponse{
		Message:   "Message relayed successfully",
		RelayID:   res.RelayID.String(),
		RequestID: requestID(r),
	})
}

// ──────────────────────────────────────────────────
// Billing
// ──────────────────────────────────────────────────

// SubscribeRequest is the billing subscribe body.
type SubscribeRequest struct {
	DeviceID string `json:"deviceId" validate:"required"`
	PlanID   string `json:"planId"   validate:"required"`
}

// SubscribeResponse describes the created subscription.
type SubscribeResponse struct {
	Message        string    `json:"message"`
	SubscriptionID string    `json:"subscriptionId"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	RequestID      string    `json:"requestId"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !s.decode(w, r, &req) {
		return
	}

	sub, err := s.gw.Subscribe(r.Context(), req.DeviceID, req.PlanID)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SubscribeResponse{
		Message:        "Subscription created successfully",
		SubscriptionID: sub.ID.String(),
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		RequestID:      requestID(r),
	})
}

// ──────────────────────────────────────────────────
// Mock collaborators
// ──────────────────────────────────────────────────

// mockFailure is the body of an injected mock failure.
type mockFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func failureStatus(err error, fallback int) int {
	if code, ok := retry.StatusCode(err); ok {
		return code
	}
	return fallback
}

func (s *Server) handleMockCharge(w http.ResponseWriter, r *http.Request) {
	var req payment.ChargeRequest
	if !s.decode(w, r, &req) {
		return
	}

	receipt, err := s.mockPay.Charge(r.Context(), payment.Charge{
		DeviceID: req.DeviceID,
		PlanID:   req.PlanID,
		Amount:   types.FromMajor(req.Amount, "usd"),
	})
	if err != nil {
		s.logger.Warn("mock payment failed", "request_id", requestID(r), "error", err)
		writeJSON(w, failureStatus(err, http.StatusInternalServerError), mockFailure{Error: message(err)})
		return
	}

	writeJSON(w, http.StatusOK, payment.ChargeResponse{
		Success:       true,
		TransactionID: receipt.TransactionID,
		Amount:        receipt.Amount.Major(),
		Timestamp:     receipt.Timestamp,
	})
}

func (s *Server) handleMockReceive(w http.ResponseWriter, r *http.Request) {
	var env receiver.Envelope
	if !s.decode(w, r, &env) {
		return
	}

	ack, err := s.mockReceive.Deliver(r.Context(), env)
	if err != nil {
		s.logger.Warn("mock relay failed", "request_id", requestID(r), "error", err)
		writeJSON(w, failureStatus(err, http.StatusServiceUnavailable), mockFailure{Error: message(err)})
		return
	}

	s.logger.Info("mock relay received",
		"request_id", requestID(r),
		"client_id", env.ClientID,
		"idempotency_key", env.IdempotencyKey,
	)
	writeJSON(w, http.StatusOK, receiver.ReceiveResponse{
		Success:   true,
		MessageID: ack.MessageID,
		Timestamp: ack.Timestamp,
	})
}

func message(err error) string {
	var se *retry.StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
