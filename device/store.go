package device

import (
	"context"
	"time"
)

type Store interface {
	Create(ctx context.Context, d *Device) error
	Get(ctx context.Context, deviceID string) (*Device, error)
	// Refresh touches the device timestamp and forces it ACTIVE.
	Refresh(ctx context.Context, deviceID string, at time.Time) error
}
