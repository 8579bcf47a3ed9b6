package audithook

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
)

type captured struct{ events []*AuditEvent }

func (c *captured) Record(_ context.Context, evt *AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestEntitlementOnlyAuditsDenials(t *testing.T) {
	rec := &captured{}
	e := New(rec)
	ctx := context.Background()

	require.NoError(t, e.OnEntitlementChecked(ctx, &entitlement.Decision{DeviceID: "dev-1", Allowed: true}))
	require.NoError(t, e.OnEntitlementChecked(ctx, &entitlement.Decision{DeviceID: "dev-2", Reason: entitlement.ReasonNoSubscription}))

	require.Len(t, rec.events, 1)
	assert.Equal(t, ActionEntitlementDenied, rec.events[0].Action)
	assert.Equal(t, "dev-2", rec.events[0].ResourceID)
	assert.Equal(t, OutcomeFailure, rec.events[0].Outcome)
}

func TestRelayFailureCarriesReason(t *testing.T) {
	rec := &captured{}
	e := New(rec)

	r := &relay.Record{ID: id.NewRelayID(), ClientID: "cli-1"}
	require.NoError(t, e.OnRelayFailed(context.Background(), r, 3, errors.New("status 503: down")))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, ActionRelayFailed, evt.Action)
	assert.Equal(t, r.ID.String(), evt.ResourceID)
	assert.Equal(t, "status 503: down", evt.Reason)
	assert.Equal(t, 3, evt.Metadata["attempts"])
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	only := &captured{}
	e := New(only, WithEnabledActions(ActionPaymentFailed))
	require.NoError(t, e.OnTelemetryRejected(ctx, "dev-1", "device_inactive"))
	require.NoError(t, e.OnPaymentFailed(ctx, "dev-1", "yearly", errors.New("declined")))
	require.Len(t, only.events, 1)
	assert.Equal(t, ActionPaymentFailed, only.events[0].Action)

	skip := &captured{}
	e = New(skip, WithDisabledActions(ActionRelayReplayed))
	require.NoError(t, e.OnReplay(ctx, "relay", "k-1"))
	require.NoError(t, e.OnTelemetryRejected(ctx, "dev-1", "device_inactive"))
	require.Len(t, skip.events, 1)
	assert.Equal(t, ActionTelemetryRejected, skip.events[0].Action)
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	failing := RecorderFunc(func(context.Context, *AuditEvent) error { return errors.New("backend down") })
	var buf bytes.Buffer
	e := New(failing, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	assert.NoError(t, e.OnTelemetryRejected(context.Background(), "dev-1", "device_inactive"))
	assert.Contains(t, buf.String(), "failed to record audit event")
}

func TestSlogRecorderLevels(t *testing.T) {
	var buf bytes.Buffer
	r := NewSlogRecorder(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, r.Record(context.Background(), &AuditEvent{Action: ActionPaymentFailed, Severity: SeverityCritical}))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "action=payment.failed")
}
