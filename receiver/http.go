package receiver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/internal/httpjson"
	"github.com/xraph/tollgate/retry"
)

// ReceivePath is the receiver route relative to the base URL.
const ReceivePath = "/mock-relay/receive"

// ReceiveResponse is the receiver's success body.
type ReceiveResponse struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTPReceiver posts envelopes to a remote receiver.
type HTTPReceiver struct {
	url    string
	client *http.Client
	fault  fault.Injector
}

// HTTPOption configures an HTTPReceiver.
type HTTPOption func(*HTTPReceiver)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPReceiver) { r.client = c }
}

// WithFault injects failures before the request is sent.
func WithFault(inj fault.Injector) HTTPOption {
	return func(r *HTTPReceiver) { r.fault = inj }
}

// NewHTTPReceiver creates a receiver posting to baseURL + ReceivePath.
// Per-attempt deadlines come from the caller's context.
func NewHTTPReceiver(baseURL string, opts ...HTTPOption) *HTTPReceiver {
	r := &HTTPReceiver{
		url:    strings.TrimRight(baseURL, "/") + ReceivePath,
		client: httpjson.NewClient(0),
		fault:  fault.Never,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Deliver implements Receiver.
func (r *HTTPReceiver) Deliver(ctx context.Context, env Envelope) (*Ack, error) {
	if err := r.fault.Inject(ctx, fault.OpDeliver); err != nil {
		return nil, err
	}

	var out ReceiveResponse
	if err := httpjson.Post(ctx, r.client, r.url, env, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &retry.StatusError{Code: http.StatusBadGateway, Message: "delivery not acknowledged"}
	}
	return &Ack{MessageID: out.MessageID, Timestamp: out.Timestamp.UTC()}, nil
}
