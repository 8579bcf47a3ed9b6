package tollgate

import (
	"context"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
)

// refreshTimeout bounds the background snapshot refresh after a subscribe.
const refreshTimeout = 30 * time.Second

// ──────────────────────────────────────────────────
// Billing
// ──────────────────────────────────────────────────

// Subscribe charges deviceID for planID and records an ACTIVE subscription
// for the plan's term. The charge is attempted once. The device snapshot
// is refreshed in the background; Stop waits for it.
func (g *Gateway) Subscribe(ctx context.Context, deviceID, planID string) (*subscription.Subscription, error) {
	var errs ValidationErrors
	if deviceID == "" {
		errs.Add("deviceId", "is required")
	}
	if planID == "" {
		errs.Add("planId", "is required")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	p := g.catalog.Resolve(planID)

	receipt, err := g.payments.Charge(ctx, payment.Charge{
		DeviceID: deviceID,
		PlanID:   planID,
		Amount:   p.Price,
	})
	if err != nil {
		g.logger.Error("payment failed",
			"device_id", deviceID,
			"plan_id", planID,
			"amount", p.Price.String(),
			"error", err,
		)
		g.plugins.EmitPaymentFailed(ctx, deviceID, planID, err)
		return nil, &PaymentError{DeviceID: deviceID, PlanID: planID, Err: err}
	}

	now := g.now().UTC()
	sub := &subscription.Subscription{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewSubscriptionID(),
		DeviceID:    deviceID,
		PlanID:      planID,
		Status:      subscription.StatusActive,
		StartDate:   now,
		EndDate:     p.Term(now),
		ProviderRef: receipt.TransactionID,
	}

	if err := g.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	g.logger.Info("subscription created",
		"device_id", deviceID,
		"subscription_id", sub.ID.String(),
		"transaction_id", receipt.TransactionID,
	)
	g.plugins.EmitSubscriptionCreated(ctx, sub)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		if err := g.refreshDevice(rctx, deviceID); err != nil {
			g.logger.Warn("device snapshot refresh failed",
				"device_id", deviceID,
				"error", err,
			)
		}
	}()

	return sub, nil
}

// GetSubscription retrieves a subscription by id.
func (g *Gateway) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return g.store.GetSubscription(ctx, subID)
}

// ListSubscriptions returns a device's subscriptions, newest first.
func (g *Gateway) ListSubscriptions(ctx context.Context, deviceID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return g.store.ListSubscriptions(ctx, deviceID, opts)
}
