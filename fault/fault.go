// Package fault injects probabilistic upstream failures into collaborator
// calls. The mock payment and relay endpoints use it to exercise the retry
// and compensation paths.
package fault

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/xraph/tollgate/retry"
)

// Operation names understood by the default rates.
const (
	OpCharge  = "payment.charge"
	OpDeliver = "relay.deliver"
)

// Rate describes how often an operation fails and with which status.
type Rate struct {
	Probability float64
	Status      int
	Message     string
}

// Default rates for the simulated collaborators.
var (
	DefaultChargeRate  = Rate{Probability: 0.2, Status: http.StatusInternalServerError, Message: "Payment processing temporarily unavailable"}
	DefaultDeliverRate = Rate{Probability: 0.1, Status: http.StatusServiceUnavailable, Message: "Relay service temporarily unavailable"}
)

// Injector decides whether a call to op should fail. A nil error means
// proceed.
type Injector interface {
	Inject(ctx context.Context, op string) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, op string) error

func (f InjectorFunc) Inject(ctx context.Context, op string) error { return f(ctx, op) }

// Never is an Injector that never fails.
var Never Injector = InjectorFunc(func(context.Context, string) error { return nil })

// Random fails operations with their configured probability.
type Random struct {
	mu    sync.RWMutex
	rates map[string]Rate
	roll  func() float64
}

// Option configures a Random injector.
type Option func(*Random)

// WithRoll replaces the random source. roll must return values in [0,1).
func WithRoll(roll func() float64) Option {
	return func(r *Random) { r.roll = roll }
}

// NewRandom creates an injector with the given per-operation rates.
func NewRandom(rates map[string]Rate, opts ...Option) *Random {
	r := &Random{
		rates: make(map[string]Rate, len(rates)),
		roll:  rand.Float64,
	}
	for op, rate := range rates {
		r.rates[op] = rate
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Defaults returns the rates used by the mock endpoints, with the
// probabilities overridden by the given values.
func Defaults(chargeProbability, deliverProbability float64) map[string]Rate {
	charge, deliver := DefaultChargeRate, DefaultDeliverRate
	charge.Probability = chargeProbability
	deliver.Probability = deliverProbability
	return map[string]Rate{OpCharge: charge, OpDeliver: deliver}
}

// Set changes the rate for op at runtime.
func (r *Random) Set(op string, rate Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[op] = rate
}

// Inject returns a *retry.StatusError when the roll lands under the
// operation's probability.
func (r *Random) Inject(_ context.Context, op string) error {
	r.mu.RLock()
	rate, ok := r.rates[op]
	r.mu.RUnlock()

	if !ok || rate.Probability <= 0 {
		return nil
	}
	if rate.Probability < 1 && r.roll() >= rate.Probability {
		return nil
	}
	return &retry.StatusError{Code: rate.Status, Message: rate.Message}
}
