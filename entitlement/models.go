// Package entitlement evaluates whether a device may currently submit
// telemetry.
package entitlement

import (
	"time"

	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/subscription"
)

// Reason values reported on a Decision.
const (
	ReasonEntitled       = "entitled"
	ReasonDeviceNotFound = "device not found"
	ReasonDeviceInactive = "device inactive"
	ReasonNoSubscription = "no active subscription"
)

// Decision is the outcome of one entitlement check.
type Decision struct {
	DeviceID       string     `json:"device_id"`
	Allowed        bool       `json:"allowed"`
	Reason         string     `json:"reason"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	CheckedAt      time.Time  `json:"checked_at"`
}

// Evaluate decides entitlement from a device and its candidate
// subscription. Either may be nil.
func Evaluate(deviceID string, d *device.Device, sub *subscription.Subscription, at time.Time) Decision {
	dec := Decision{DeviceID: deviceID, CheckedAt: at}

	switch {
	case d == nil:
		dec.Reason = ReasonDeviceNotFound
	case !d.Active():
		dec.Reason = ReasonDeviceInactive
	case !sub.ActiveAt(at):
		dec.Reason = ReasonNoSubscription
	default:
		end := sub.EndDate
		dec.Allowed = true
		dec.Reason = ReasonEntitled
		dec.SubscriptionID = sub.ID.String()
		dec.ValidUntil = &end
	}

	return dec
}
