// Package payment defines the charge contract used by the billing workflow
// and two providers: an HTTP client for a remote processor and an
// in-process simulator that backs the mock processor endpoint.
package payment

import (
	"context"
	"time"

	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

// Charge is a single payment request.
type Charge struct {
	DeviceID string
	PlanID   string
	Amount   types.Money
}

// Receipt confirms a successful charge.
type Receipt struct {
	TransactionID string      `json:"transaction_id"`
	Amount        types.Money `json:"amount"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Provider charges a device for a plan. Implementations return an error
// carrying a status code (retry.StatusCoder) when the processor declines.
type Provider interface {
	Charge(ctx context.Context, c Charge) (*Receipt, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, c Charge) (*Receipt, error)

func (f ProviderFunc) Charge(ctx context.Context, c Charge) (*Receipt, error) { return f(ctx, c) }

// Simulator approves charges unless its fault injector says otherwise.
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

// Charge implements Provider.
func (s *Simulator) Charge(ctx context.Context, c Charge) (*Receipt, error) {
	if err := s.fault.Inject(ctx, fault.OpCharge); err != nil {
		return nil, err
	}
	return &Receipt{
		TransactionID: id.NewTransactionID().String(),
		Amount:        c.Amount,
		Timestamp:     s.now().UTC(),
	}, nil
}
