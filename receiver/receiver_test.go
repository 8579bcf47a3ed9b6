package receiver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/retry"
)

func TestSimulatorDeliver(t *testing.T) {
	ack, err := NewSimulator(nil).Deliver(context.Background(), Envelope{ClientID: "cli-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ack.MessageID, "msg_"))

	_, err = NewSimulator(fault.NewRandom(fault.Defaults(0, 1))).Deliver(context.Background(), Envelope{})
	assert.True(t, retry.IsServerError(err))
}

func TestHTTPReceiverForwardsEnvelope(t *testing.T) {
	var got Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ReceivePath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ReceiveResponse{Success: true, MessageID: "m-1", Timestamp: time.Now()})
	}))
	defer srv.Close()

	env := Envelope{ClientID: "cli-1", Message: "hi", Meta: map[string]any{"a": "b"}, IdempotencyKey: "k-1"}
	ack, err := NewHTTPReceiver(srv.URL).Deliver(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "m-1", ack.MessageID)
	assert.Equal(t, env, got)
}

func TestHTTPReceiverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ReceiveResponse{Success: true, MessageID: "m-3"})
	}))
	defer srv.Close()

	r := NewHTTPReceiver(srv.URL)
	policy := retry.DefaultPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	ack, err := retry.Do(context.Background(), policy, func(ctx context.Context, _ int) (*Ack, error) {
		return r.Deliver(ctx, Envelope{ClientID: "cli-1"})
	})
	require.NoError(t, err)
	assert.Equal(t, "m-3", ack.MessageID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPReceiverFaultSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	r := NewHTTPReceiver(srv.URL, WithFault(fault.NewRandom(fault.Defaults(0, 1))))
	_, err := r.Deliver(context.Background(), Envelope{})
	code, ok := retry.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
