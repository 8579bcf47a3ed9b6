// Package relay models outbound relay submissions and their delivery
// lifecycle.
package relay

import (
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

type Status string

// PENDING is the only initial state. SENT and FAILED are terminal.
const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransition reports whether a record in s may move to next.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.Terminal()
}

type Record struct {
	types.Entity
	ID             id.RelayID     `json:"id"`
	ClientID       string         `json:"client_id"`
	Message        string         `json:"message"`
	Meta           map[string]any `json:"meta,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	Status         Status         `json:"status"`
	LastAttempt    *time.Time     `json:"last_attempt,omitempty"`
}
