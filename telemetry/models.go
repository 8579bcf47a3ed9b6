// Package telemetry models device telemetry pings.
package telemetry

import (
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
	StatusDown  Status = "DOWN"
	StatusWarn  Status = "WARN"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusError, StatusDown, StatusWarn:
		return true
	}
	return false
}

type Record struct {
	types.Entity
	ID        id.TelemetryID `json:"id"`
	DeviceID  string         `json:"device_id"`
	Metric    string         `json:"metric"`
	Value     string         `json:"value"`
	Status    Status         `json:"status"`
	Timestamp time.Time      `json:"ts"`
	EventID   string         `json:"event_id"`
}
