// Package device models provisioned endpoints that submit telemetry.
package device

import "github.com/xraph/tollgate/types"

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Device is a provisioned endpoint. Its UpdatedAt doubles as the
// last-seen timestamp maintained by snapshot refreshes.
type Device struct {
	types.Entity
	ID     string `json:"id"`
	Status Status `json:"status"`
}

func (d *Device) Active() bool { return d != nil && d.Status == StatusActive }
