// Package audithook bridges Tollgate lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package stays free of any
// particular audit store. NewSlogRecorder writes events to a structured log.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnEntitlementChecked  = (*Extension)(nil)
	_ plugin.OnTelemetryIngested   = (*Extension)(nil)
	_ plugin.OnTelemetryRejected   = (*Extension)(nil)
	_ plugin.OnRelayPublished      = (*Extension)(nil)
	_ plugin.OnRelayDelivered      = (*Extension)(nil)
	_ plugin.OnRelayFailed         = (*Extension)(nil)
	_ plugin.OnReplay              = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated = (*Extension)(nil)
	_ plugin.OnPaymentFailed       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// NewSlogRecorder returns a Recorder that logs each event at a level
// derived from its severity.
func NewSlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityError, SeverityCritical:
			level = slog.LevelError
		}
		logger.LogAttrs(ctx, level, "audit",
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("category", evt.Category),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
}

// Extension bridges Tollgate lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked only audits denials.
func (e *Extension) OnEntitlementChecked(ctx context.Context, d *entitlement.Decision) error {
	if d.Allowed {
		return nil
	}
	return e.record(ctx, ActionEntitlementDenied, SeverityWarning, OutcomeFailure,
		ResourceDevice, d.DeviceID, CategoryAccess, nil,
		"reason", d.Reason,
	)
}

// ──────────────────────────────────────────────────
// Telemetry hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnTelemetryIngested(ctx context.Context, rec *telemetry.Record) error {
	return e.record(ctx, ActionTelemetryIngested, SeverityInfo, OutcomeSuccess,
		ResourceTelemetry, rec.ID.String(), CategoryIngestion, nil,
		"device_id", rec.DeviceID,
		"metric", rec.Metric,
		"status", string(rec.Status),
		"event_id", rec.EventID,
	)
}

func (e *Extension) OnTelemetryRejected(ctx context.Context, deviceID, reason string) error {
	return e.record(ctx, ActionTelemetryRejected, SeverityWarning, OutcomeFailure,
		ResourceDevice, deviceID, CategoryAccess, nil,
		"reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Relay hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnRelayPublished(ctx context.Context, rec *relay.Record) error {
	return e.record(ctx, ActionRelayPublished, SeverityInfo, OutcomeSuccess,
		ResourceRelay, rec.ID.String(), CategoryDelivery, nil,
		"client_id", rec.ClientID,
		"idempotency_key", rec.IdempotencyKey,
	)
}

func (e *Extension) OnRelayDelivered(ctx context.Context, rec *relay.Record, attempts int) error {
	return e.record(ctx, ActionRelayDelivered, SeverityInfo, OutcomeSuccess,
		ResourceRelay, rec.ID.String(), CategoryDelivery, nil,
		"client_id", rec.ClientID,
		"attempts", attempts,
	)
}

func (e *Extension) OnRelayFailed(ctx context.Context, rec *relay.Record, attempts int, cause error) error {
	return e.record(ctx, ActionRelayFailed, SeverityError, OutcomeFailure,
		ResourceRelay, rec.ID.String(), CategoryDelivery, cause,
		"client_id", rec.ClientID,
		"attempts", attempts,
	)
}

// OnReplay audits relay replays only; telemetry replays are routine
// device retries.
func (e *Extension) OnReplay(ctx context.Context, keyspace, key string) error {
	if keyspace != "relay" {
		return nil
	}
	return e.record(ctx, ActionRelayReplayed, SeverityInfo, OutcomeSuccess,
		ResourceRelay, "", CategoryDelivery, nil,
		"idempotency_key", key,
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategoryBilling, nil,
		"device_id", sub.DeviceID,
		"plan_id", sub.PlanID,
		"provider_ref", sub.ProviderRef,
		"end_date", sub.EndDate,
	)
}

func (e *Extension) OnPaymentFailed(ctx context.Context, deviceID, planID string, cause error) error {
	return e.record(ctx, ActionPaymentFailed, SeverityCritical, OutcomeFailure,
		ResourcePayment, deviceID, CategoryBilling, cause,
		"plan_id", planID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
