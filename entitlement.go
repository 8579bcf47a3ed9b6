package tollgate

import (
	"context"
	"errors"

	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/subscription"
)

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// IsEntitled reports whether deviceID may submit telemetry now. A missing
// device or subscription is a plain false; only storage failures are
// returned as errors.
func (g *Gateway) IsEntitled(ctx context.Context, deviceID string) (bool, error) {
	dec, err := g.CheckEntitlement(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return dec.Allowed, nil
}

// CheckEntitlement evaluates deviceID and reports why it is or is not
// entitled.
func (g *Gateway) CheckEntitlement(ctx context.Context, deviceID string) (*entitlement.Decision, error) {
	now := g.now().UTC()

	dev, err := g.store.GetDevice(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, ErrDeviceNotFound) {
			return nil, err
		}
		dev = nil
	}

	var sub *subscription.Subscription
	if dev.Active() {
		sub, err = g.store.GetActiveSubscription(ctx, deviceID, now)
		if err != nil {
			if !errors.Is(err, ErrNoActiveSubscription) {
				return nil, err
			}
			sub = nil
		}
	}

	dec := entitlement.Evaluate(deviceID, dev, sub, now)
	g.plugins.EmitEntitlementChecked(ctx, &dec)

	return &dec, nil
}

// GetDevice retrieves a device by id.
func (g *Gateway) GetDevice(ctx context.Context, deviceID string) (*device.Device, error) {
	return g.store.GetDevice(ctx, deviceID)
}
