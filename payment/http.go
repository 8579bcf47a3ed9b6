package payment

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/internal/httpjson"
	"github.com/xraph/tollgate/retry"
	"github.com/xraph/tollgate/types"
)

// ChargePath is the processor route relative to the base URL.
const ChargePath = "/mock-pay/charge"

// ChargeRequest is the wire body posted to the processor.
type ChargeRequest struct {
	DeviceID string  `json:"deviceId" validate:"required"`
	PlanID   string  `json:"planId"   validate:"required"`
	Amount   float64 `json:"amount"   validate:"gt=0"`
}

// ChargeResponse is the processor's success body.
type ChargeResponse struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// HTTPProvider charges through a remote processor speaking the mock
// processor's JSON contract.
type HTTPProvider struct {
	url    string
	client *http.Client
	fault  fault.Injector
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithFault injects failures before the request is sent.
func WithFault(inj fault.Injector) HTTPOption {
	return func(p *HTTPProvider) { p.fault = inj }
}

// NewHTTPProvider creates a provider posting to baseURL + ChargePath.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		url:    strings.TrimRight(baseURL, "/") + ChargePath,
		client: httpjson.NewClient(30 * time.Second),
		fault:  fault.Never,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Charge implements Provider. It is called once per subscribe request.
func (p *HTTPProvider) Charge(ctx context.Context, c Charge) (*Receipt, error) {
	if err := p.fault.Inject(ctx, fault.OpCharge); err != nil {
		return nil, err
	}

	var out ChargeResponse
	err := httpjson.Post(ctx, p.client, p.url, ChargeRequest{
		DeviceID: c.DeviceID,
		PlanID:   c.PlanID,
		Amount:   c.Amount.Major(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success || out.TransactionID == "" {
		return nil, &retry.StatusError{Code: http.StatusBadGateway, Message: "charge not confirmed"}
	}

	amount := c.Amount
	if out.Amount > 0 {
		amount = types.FromMajor(out.Amount, c.Amount.Currency)
	}
	return &Receipt{
		TransactionID: out.TransactionID,
		Amount:        amount,
		Timestamp:     out.Timestamp.UTC(),
	}, nil
}
