package relay

import (
	"context"
	"time"

	"github.com/xraph/tollgate/id"
)

type Store interface {
	// Create inserts a PENDING record. A duplicate idempotency key yields
	// an already-exists error.
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, relayID id.RelayID) (*Record, error)
	GetByKey(ctx context.Context, idempotencyKey string) (*Record, error)
	// Complete moves a PENDING record to a terminal status and stamps
	// LastAttempt. Records already terminal are left untouched.
	Complete(ctx context.Context, relayID id.RelayID, status Status, at time.Time) error
}
