// Package receiver defines the downstream relay contract and two
// implementations: an HTTP client and an in-process simulator backing the
// mock receiver endpoint.
package receiver

import (
	"context"
	"time"

	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/id"
)

// Envelope is the message forwarded downstream. The idempotency key lets
// the receiver deduplicate at-least-once redeliveries.
type Envelope struct {
	ClientID       string         `json:"clientId"`
	Message        string         `json:"message"`
	Meta           map[string]any `json:"meta,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

// Ack is the receiver's acknowledgement.
type Ack struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Receiver delivers one envelope. Failures that should be retried carry a
// 5xx status code (retry.StatusCoder).
type Receiver interface {
	Deliver(ctx context.Context, env Envelope) (*Ack, error)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, env Envelope) (*Ack, error)

func (f ReceiverFunc) Deliver(ctx context.Context, env Envelope) (*Ack, error) { return f(ctx, env) }

// Simulator accepts every envelope unless its fault injector fails it.
type Simulator struct {
	fault fault.Injector
	now   func() time.Time
}

// NewSimulator creates a simulator. A nil injector never fails.
func NewSimulator(inj fault.Injector) *Simulator {
	if inj == nil {
		inj = fault.Never
	}
	return &Simulator{fault: inj, now: time.Now}
}

// Deliver implements Receiver.
func (s *Simulator) Deliver(ctx context.Context, _ Envelope) (*Ack, error) {
	if err := s.fault.Inject(ctx, fault.OpDeliver); err != nil {
		return nil, err
	}
	return &Ack{MessageID: id.NewMessageID().String(), Timestamp: s.now().UTC()}, nil
}
