package tollgate

import (
	"context"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

// ──────────────────────────────────────────────────
// Telemetry Ingestion
// ──────────────────────────────────────────────────

// TelemetryInput is one telemetry ping. EventID deduplicates resubmissions.
type TelemetryInput struct {
	DeviceID  string
	Metric    string
	Value     string
	Status    telemetry.Status
	Timestamp time.Time
	EventID   string
}

// Validate checks the fields IngestTelemetry requires.
func (in TelemetryInput) Validate() error {
	var errs ValidationErrors
	if in.DeviceID == "" {
		errs.Add("deviceId", "is required")
	}
	if in.Metric == "" {
		errs.Add("metric", "is required")
	}
	if !in.Status.Valid() {
		errs.Add("status", "must be one of OK, ERROR, DOWN, WARN")
	}
	if in.EventID == "" {
		errs.Add("eventId", "is required")
	}
	return errs.Err()
}

// IngestResult reports the stored record id and whether it already
// existed.
type IngestResult struct {
	TelemetryID id.TelemetryID
	Replayed    bool
}

// IngestTelemetry stores a ping from an entitled device and refreshes the
// device snapshot. A repeated EventID returns the original record without
// touching the device.
func (g *Gateway) IngestTelemetry(ctx context.Context, in TelemetryInput) (*IngestResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	dec, err := g.CheckEntitlement(ctx, in.DeviceID)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		g.logger.Warn("rejected ping from inactive device",
			"device_id", in.DeviceID,
			"reason", dec.Reason,
		)
		g.plugins.EmitTelemetryRejected(ctx, in.DeviceID, dec.Reason)
		return nil, ErrDeviceInactive
	}

	rec, replayed, err := g.events.Claim(ctx, in.EventID, func(ctx context.Context) (*telemetry.Record, error) {
		now := g.now()
		ts := in.Timestamp
		if ts.IsZero() {
			ts = now
		}
		r := &telemetry.Record{
			Entity:    types.NewEntityAt(now),
			ID:        id.NewTelemetryID(),
			DeviceID:  in.DeviceID,
			Metric:    in.Metric,
			Value:     in.Value,
			Status:    in.Status,
			Timestamp: ts.UTC(),
			EventID:   in.EventID,
		}
		if err := g.store.CreateTelemetry(ctx, r); err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		g.logger.Info("telemetry already processed",
			"device_id", in.DeviceID,
			"event_id", in.EventID,
			"telemetry_id", rec.ID.String(),
		)
		g.plugins.EmitReplay(ctx, KeyspaceTelemetry, in.EventID)
		return &IngestResult{TelemetryID: rec.ID, Replayed: true}, nil
	}

	g.events.Remember(ctx, in.EventID, rec)

	if err := g.refreshDevice(ctx, in.DeviceID); err != nil {
		return nil, err
	}

	g.logger.Debug("telemetry processed",
		"device_id", in.DeviceID,
		"telemetry_id", rec.ID.String(),
		"status", string(in.Status),
	)
	g.plugins.EmitTelemetryIngested(ctx, rec)

	return &IngestResult{TelemetryID: rec.ID}, nil
}

// ListTelemetry returns a device's telemetry, newest first.
func (g *Gateway) ListTelemetry(ctx context.Context, deviceID string, opts telemetry.ListOpts) ([]*telemetry.Record, error) {
	return g.store.ListTelemetry(ctx, deviceID, opts)
}
