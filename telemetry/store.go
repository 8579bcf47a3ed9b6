package telemetry

import (
	"context"

	"github.com/xraph/tollgate/id"
)

type Store interface {
	// Create inserts a record. A duplicate event id yields an
	// already-exists error.
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, telemetryID id.TelemetryID) (*Record, error)
	GetByEvent(ctx context.Context, eventID string) (*Record, error)
	List(ctx context.Context, deviceID string, opts ListOpts) ([]*Record, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
