package subscription

import (
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusCanceled Status = "CANCELED"
	StatusExpired  Status = "EXPIRED"
)

type Subscription struct {
	types.Entity
	ID          id.SubscriptionID `json:"id"`
	DeviceID    string            `json:"device_id"`
	PlanID      string            `json:"plan_id"`
	Status      Status            `json:"status"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	ProviderRef string            `json:"provider_ref,omitempty"`
}

// ActiveAt reports whether the subscription grants entitlement at t.
// The end date is inclusive.
func (s *Subscription) ActiveAt(t time.Time) bool {
	return s != nil && s.Status == StatusActive && !s.EndDate.Before(t)
}
