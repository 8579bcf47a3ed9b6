package subscription

import (
	"context"
	"time"

	"github.com/xraph/tollgate/id"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	// GetActive returns the ACTIVE subscription with EndDate >= at and the
	// latest StartDate.
	GetActive(ctx context.Context, deviceID string, at time.Time) (*Subscription, error)
	List(ctx context.Context, deviceID string, opts ListOpts) ([]*Subscription, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
