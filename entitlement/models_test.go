package entitlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/subscription"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active := &device.Device{ID: "d1", Status: device.StatusActive}
	inactive := &device.Device{ID: "d1", Status: device.StatusInactive}

	sub := func(status subscription.Status, end time.Time) *subscription.Subscription {
		return &subscription.Subscription{
			ID:        id.NewSubscriptionID(),
			DeviceID:  "d1",
			Status:    status,
			StartDate: end.AddDate(-1, 0, 0),
			EndDate:   end,
		}
	}

	tests := []struct {
		name    string
		dev     *device.Device
		sub     *subscription.Subscription
		allowed bool
		reason  string
	}{
		{"missing device", nil, sub(subscription.StatusActive, now.Add(time.Hour)), false, entitlement.ReasonDeviceNotFound},
		{"inactive device", inactive, sub(subscription.StatusActive, now.Add(time.Hour)), false, entitlement.ReasonDeviceInactive},
		{"no subscription", active, nil, false, entitlement.ReasonNoSubscription},
		{"expired subscription", active, sub(subscription.StatusActive, now.Add(-time.Second)), false, entitlement.ReasonNoSubscription},
		{"canceled subscription", active, sub(subscription.StatusCanceled, now.Add(time.Hour)), false, entitlement.ReasonNoSubscription},
		{"ends exactly now", active, sub(subscription.StatusActive, now), true, entitlement.ReasonEntitled},
		{"entitled", active, sub(subscription.StatusActive, now.AddDate(0, 6, 0)), true, entitlement.ReasonEntitled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := entitlement.Evaluate("d1", tt.dev, tt.sub, now)
			assert.Equal(t, tt.allowed, dec.Allowed)
			assert.Equal(t, tt.reason, dec.Reason)
			assert.Equal(t, now, dec.CheckedAt)
			if tt.allowed {
				assert.Equal(t, tt.sub.ID.String(), dec.SubscriptionID)
				if assert.NotNil(t, dec.ValidUntil) {
					assert.Equal(t, tt.sub.EndDate, *dec.ValidUntil)
				}
			} else {
				assert.Empty(t, dec.SubscriptionID)
				assert.Nil(t, dec.ValidUntil)
			}
		})
	}
}
