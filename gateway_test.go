package tollgate_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/cache"
	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/receiver"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/retry"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedReceiver fails with the queued errors, then acknowledges.
type scriptedReceiver struct {
	mu    sync.Mutex
	errs  []error
	calls atomic.Int32
	last  receiver.Envelope
}

func (r *scriptedReceiver) Deliver(_ context.Context, env receiver.Envelope) (*receiver.Ack, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = env
	if len(r.errs) > 0 {
		err := r.errs[0]
		if len(r.errs) > 1 {
			r.errs = r.errs[1:]
		}
		return nil, err
	}
	return &receiver.Ack{MessageID: "msg-1"}, nil
}

type fixture struct {
	gw     *tollgate.Gateway
	store  *memory.Store
	clock  *clock
	recv   *scriptedReceiver
	delays []time.Duration
}

func newFixture(t *testing.T, opts ...tollgate.Option) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.New(),
		clock: &clock{now: testNow},
		recv:  &scriptedReceiver{},
	}
	seed(t, f.store)

	var mu sync.Mutex
	policy := retry.DefaultPolicy()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		f.delays = append(f.delays, d)
		mu.Unlock()
		return nil
	}

	base := []tollgate.Option{
		tollgate.WithClock(f.clock.Now),
		tollgate.WithReceiver(f.recv),
		tollgate.WithRetryPolicy(policy),
	}
	f.gw = tollgate.New(f.store, append(base, opts...)...)
	require.NoError(t, f.gw.Start(context.Background()))
	t.Cleanup(func() { _ = f.gw.Stop() })

	return f
}

func seed(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()
	past := testNow.Add(-48 * time.Hour)

	for _, d := range []*device.Device{
		{Entity: types.NewEntityAt(past), ID: "device-001", Status: device.StatusActive},
		{Entity: types.NewEntityAt(past), ID: "device-002", Status: device.StatusInactive},
		{Entity: types.NewEntityAt(past), ID: "device-003", Status: device.StatusActive},
	} {
		require.NoError(t, s.CreateDevice(ctx, d))
	}

	require.NoError(t, s.CreateSubscription(ctx, &subscription.Subscription{
		Entity:    types.NewEntityAt(past),
		ID:        id.NewSubscriptionID(),
		DeviceID:  "device-001",
		PlanID:    "yearly",
		Status:    subscription.StatusActive,
		StartDate: past,
		EndDate:   past.AddDate(1, 0, 0),
	}))
	require.NoError(t, s.CreateSubscription(ctx, &subscription.Subscription{
		Entity:    types.NewEntityAt(past),
		ID:        id.NewSubscriptionID(),
		DeviceID:  "device-003",
		PlanID:    "yearly",
		Status:    subscription.StatusActive,
		StartDate: past.AddDate(-1, 0, 0),
		EndDate:   past,
	}))

	for _, c := range []*client.Client{
		{Entity: types.NewEntityAt(past), ID: "test-client-001", APIKey: "key-001", Name: "Test", Status: client.StatusActive},
		{Entity: types.NewEntityAt(past), ID: "test-client-002", APIKey: "key-002", Name: "Disabled", Status: client.StatusInactive},
	} {
		require.NoError(t, s.CreateClient(ctx, c))
	}
}

func serverError(code int) error {
	return &retry.StatusError{Code: code, Message: http.StatusText(code)}
}

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

func TestIsEntitled(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		device string
		want   bool
		reason string
	}{
		{"device-001", true, entitlement.ReasonEntitled},
		{"device-002", false, entitlement.ReasonDeviceInactive},
		{"device-003", false, entitlement.ReasonNoSubscription},
		{"device-404", false, entitlement.ReasonDeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			ok, err := f.gw.IsEntitled(context.Background(), tt.device)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			dec, err := f.gw.CheckEntitlement(context.Background(), tt.device)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, dec.Reason)
		})
	}
}

func TestIsEntitledStoreFailure(t *testing.T) {
	gw := tollgate.New(failingStore{Store: memory.New()})
	ok, err := gw.IsEntitled(context.Background(), "device-001")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errBoom)
}

var errBoom = errors.New("boom")

type failingStore struct{ *memory.Store }

func (failingStore) GetDevice(context.Context, string) (*device.Device, error) { return nil, errBoom }

// ──────────────────────────────────────────────────
// Telemetry
// ──────────────────────────────────────────────────

func ping(deviceID, eventID string) tollgate.TelemetryInput {
	return tollgate.TelemetryInput{
		DeviceID:  deviceID,
		Metric:    "cpu",
		Value:     "42",
		Status:    telemetry.StatusOK,
		Timestamp: testNow.Add(-time.Minute),
		EventID:   eventID,
	}
}

func TestIngestTelemetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.gw.IngestTelemetry(ctx, ping("device-001", "evt-1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, id.PrefixTelemetry, res.TelemetryID.Prefix())

	rec, err := f.store.GetTelemetryByEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, res.TelemetryID, rec.ID)
	assert.Equal(t, testNow.Add(-time.Minute), rec.Timestamp)

	dev, err := f.store.GetDevice(ctx, "device-001")
	require.NoError(t, err)
	assert.Equal(t, testNow, dev.UpdatedAt)

	// A resubmission returns the stored id and leaves the device alone.
	f.clock.Advance(time.Hour)
	again, err := f.gw.IngestTelemetry(ctx, ping("device-001", "evt-1"))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, res.TelemetryID, again.TelemetryID)

	dev, err = f.store.GetDevice(ctx, "device-001")
	require.NoError(t, err)
	assert.Equal(t, testNow, dev.UpdatedAt)

	list, err := f.gw.ListTelemetry(ctx, "device-001", telemetry.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIngestTelemetryRefreshesOnErrorStatus(t *testing.T) {
	f := newFixture(t)
	in := ping("device-001", "evt-down")
	in.Status = telemetry.StatusDown

	_, err := f.gw.IngestTelemetry(context.Background(), in)
	require.NoError(t, err)

	dev, err := f.store.GetDevice(context.Background(), "device-001")
	require.NoError(t, err)
	assert.Equal(t, device.StatusActive, dev.Status)
	assert.Equal(t, testNow, dev.UpdatedAt)
}

func TestIngestTelemetryRejected(t *testing.T) {
	f := newFixture(t)

	for _, dev := range []string{"device-002", "device-003", "device-404"} {
		_, err := f.gw.IngestTelemetry(context.Background(), ping(dev, "evt-"+dev))
		assert.ErrorIs(t, err, tollgate.ErrDeviceInactive, dev)

		_, err = f.store.GetTelemetryByEvent(context.Background(), "evt-"+dev)
		assert.ErrorIs(t, err, tollgate.ErrTelemetryNotFound)
	}
}

func TestIngestTelemetryValidation(t *testing.T) {
	f := newFixture(t)

	in := ping("", "")
	in.Status = "BROKEN"
	_, err := f.gw.IngestTelemetry(context.Background(), in)
	require.ErrorIs(t, err, tollgate.ErrInvalidInput)

	var verrs tollgate.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestIngestTelemetryConcurrentEvent(t *testing.T) {
	f := newFixture(t)

	const n = 16
	var (
		wg       sync.WaitGroup
		created  atomic.Int32
		idsMu    sync.Mutex
		distinct = map[string]struct{}{}
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.gw.IngestTelemetry(context.Background(), ping("device-001", "evt-race"))
			if !assert.NoError(t, err) {
				return
			}
			if !res.Replayed {
				created.Add(1)
			}
			idsMu.Lock()
			distinct[res.TelemetryID.String()] = struct{}{}
			idsMu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Len(t, distinct, 1)
}

// ──────────────────────────────────────────────────
// Relay
// ──────────────────────────────────────────────────

func publish(key string) tollgate.PublishInput {
	return tollgate.PublishInput{
		ClientID:       "test-client-001",
		APIKey:         "key-001",
		Message:        "hello",
		Meta:           map[string]any{"source": "test"},
		IdempotencyKey: key,
	}
}

func TestPublishAuthentication(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   tollgate.PublishInput
		want error
	}{
		{"missing key", tollgate.PublishInput{ClientID: "test-client-001", Message: "m"}, tollgate.ErrMissingCredential},
		{"unknown key", tollgate.PublishInput{ClientID: "test-client-001", APIKey: "nope", Message: "m"}, tollgate.ErrInvalidClient},
		{"key of another client", tollgate.PublishInput{ClientID: "test-client-002", APIKey: "key-001", Message: "m"}, tollgate.ErrInvalidClient},
		{"inactive client", tollgate.PublishInput{ClientID: "test-client-002", APIKey: "key-002", Message: "m"}, tollgate.ErrInvalidCredential},
		{"empty message", tollgate.PublishInput{ClientID: "test-client-001", APIKey: "key-001"}, tollgate.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gw.Publish(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.recv.calls.Load())
}

func TestPublishDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.gw.Publish(ctx, publish("k-1"))
	require.NoError(t, err)
	assert.Equal(t, relay.StatusSent, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Replayed)

	rec, err := f.gw.GetRelay(ctx, res.RelayID)
	require.NoError(t, err)
	assert.Equal(t, relay.StatusSent, rec.Status)
	require.NotNil(t, rec.LastAttempt)
	assert.Equal(t, testNow, *rec.LastAttempt)
	assert.Equal(t, "test", rec.Meta["source"])

	assert.Equal(t, receiver.Envelope{
		ClientID:       "test-client-001",
		Message:        "hello",
		Meta:           map[string]any{"source": "test"},
		IdempotencyKey: "k-1",
	}, f.recv.last)

	again, err := f.gw.Publish(ctx, publish("k-1"))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, res.RelayID, again.RelayID)
	assert.Equal(t, relay.StatusSent, again.Status)
	assert.Equal(t, int32(1), f.recv.calls.Load())
}

func TestPublishRetriesServerErrors(t *testing.T) {
	f := newFixture(t)
	f.recv.errs = []error{serverError(503), serverError(500), nil}

	res, err := f.gw.Publish(context.Background(), publish("k-retry"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.delays)
}

func TestPublishExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	f.recv.errs = []error{serverError(503)}
	ctx := context.Background()

	_, err := f.gw.Publish(ctx, publish("k-fail"))
	require.ErrorIs(t, err, tollgate.ErrDeliveryFailed)

	var derr *tollgate.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 3, derr.Attempts)
	assert.Equal(t, int32(3), f.recv.calls.Load())

	code, ok := retry.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, 503, code)

	relayID, err := id.ParseRelayID(derr.RelayID)
	require.NoError(t, err)
	rec, err := f.gw.GetRelay(ctx, relayID)
	require.NoError(t, err)
	assert.Equal(t, relay.StatusFailed, rec.Status)

	again, err := f.gw.Publish(ctx, publish("k-fail"))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, relay.StatusFailed, again.Status)
	assert.Equal(t, int32(3), f.recv.calls.Load())
}

func TestPublishFatalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client error", serverError(400)},
		{"transport error", errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.recv.errs = []error{tt.err}

			_, err := f.gw.Publish(context.Background(), publish("k-fatal"))
			var derr *tollgate.DeliveryError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, 1, derr.Attempts)
			assert.Empty(t, f.delays)
		})
	}
}

func TestPublishGeneratesKey(t *testing.T) {
	f := newFixture(t, tollgate.WithKeyGenerator(func() string { return "generated-1" }))

	res, err := f.gw.Publish(context.Background(), publish(""))
	require.NoError(t, err)
	assert.Equal(t, "generated-1", res.IdempotencyKey)
	assert.Equal(t, "generated-1", f.recv.last.IdempotencyKey)
}

func TestPublishIgnoresCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seen := make(chan error, 1)
	gw := tollgate.New(f.store, tollgate.WithReceiver(receiver.ReceiverFunc(
		func(ctx context.Context, _ receiver.Envelope) (*receiver.Ack, error) {
			seen <- ctx.Err()
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return &receiver.Ack{}, nil
		},
	)))

	res, err := gw.Publish(ctx, publish("k-cancel"))
	require.NoError(t, err)
	assert.Equal(t, relay.StatusSent, res.Status)
	assert.NoError(t, <-seen)
}

func TestPublishConcurrentKey(t *testing.T) {
	f := newFixture(t)

	const n = 12
	var (
		wg       sync.WaitGroup
		replayed atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.gw.Publish(context.Background(), publish("k-race"))
			if assert.NoError(t, err) && res.Replayed {
				replayed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n-1), replayed.Load())
	assert.Equal(t, int32(1), f.recv.calls.Load())
}

func TestPublishCachesTerminalOutcome(t *testing.T) {
	c := cache.NewMemory()
	f := newFixture(t, tollgate.WithIdempotencyCache(c, time.Hour))

	_, err := f.gw.Publish(context.Background(), publish("k-cache"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = f.gw.IngestTelemetry(context.Background(), ping("device-001", "evt-cache"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	again, err := f.gw.Publish(context.Background(), publish("k-cache"))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, relay.StatusSent, again.Status)
}

// ──────────────────────────────────────────────────
// Billing
// ──────────────────────────────────────────────────

func TestSubscribe(t *testing.T) {
	var charged payment.Charge
	f := newFixture(t, tollgate.WithPaymentProvider(payment.ProviderFunc(
		func(_ context.Context, c payment.Charge) (*payment.Receipt, error) {
			charged = c
			return &payment.Receipt{TransactionID: "txn-1", Amount: c.Amount}, nil
		},
	)))
	ctx := context.Background()

	sub, err := f.gw.Subscribe(ctx, "device-002", "custom-plan")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, "txn-1", sub.ProviderRef)
	assert.Equal(t, testNow, sub.StartDate)
	assert.Equal(t, testNow.Add(365*24*time.Hour), sub.EndDate)
	assert.True(t, charged.Amount.Equal(types.USD(9999)))

	stored, err := f.gw.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)

	require.Eventually(t, func() bool {
		dev, err := f.store.GetDevice(ctx, "device-002")
		return err == nil && dev.Status == device.StatusActive
	}, time.Second, 5*time.Millisecond)

	ok, err := f.gw.IsEntitled(ctx, "device-002")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubscribeUnlocksTelemetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateDevice(ctx, &device.Device{
		Entity: types.NewEntityAt(testNow), ID: "d1", Status: device.StatusInactive,
	}))

	ping := tollgate.TelemetryInput{
		DeviceID:  "d1",
		Metric:    "temperature",
		Value:     "21.5",
		Status:    telemetry.StatusOK,
		Timestamp: testNow,
		EventID:   "e1",
	}

	_, err := f.gw.IngestTelemetry(ctx, ping)
	require.ErrorIs(t, err, tollgate.ErrDeviceInactive)

	sub, err := f.gw.Subscribe(ctx, "d1", "yearly")
	require.NoError(t, err)
	assert.Equal(t, 365*24*time.Hour, sub.EndDate.Sub(sub.StartDate))

	require.Eventually(t, func() bool {
		ok, err := f.gw.IsEntitled(ctx, "d1")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	first, err := f.gw.IngestTelemetry(ctx, ping)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := f.gw.IngestTelemetry(ctx, ping)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.TelemetryID, again.TelemetryID)

	recs, err := f.gw.ListTelemetry(ctx, "d1", telemetry.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSubscribeUnknownDeviceStillRecordsSubscription(t *testing.T) {
	f := newFixture(t)

	sub, err := f.gw.Subscribe(context.Background(), "device-new", "yearly")
	require.NoError(t, err)
	require.NoError(t, f.gw.Stop())

	subs, err := f.gw.ListSubscriptions(context.Background(), "device-new", subscription.ListOpts{})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
}

func TestSubscribePaymentFailure(t *testing.T) {
	calls := 0
	f := newFixture(t, tollgate.WithPaymentProvider(payment.ProviderFunc(
		func(context.Context, payment.Charge) (*payment.Receipt, error) {
			calls++
			return nil, serverError(500)
		},
	)))

	_, err := f.gw.Subscribe(context.Background(), "device-002", "yearly")
	require.ErrorIs(t, err, tollgate.ErrPaymentFailed)
	assert.Equal(t, 1, calls)

	var perr *tollgate.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "device-002", perr.DeviceID)

	subs, err := f.gw.ListSubscriptions(context.Background(), "device-002", subscription.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.Subscribe(context.Background(), "", "")
	assert.ErrorIs(t, err, tollgate.ErrInvalidInput)
}
