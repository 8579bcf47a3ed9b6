package tollgate_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/receiver"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

// TestDocumentationExamples verifies that the package documentation examples
// compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		gw := tollgate.New(store,
			tollgate.WithLogger(slog.Default()),
			tollgate.WithCatalog(plan.NewCatalog(
				plan.Plan{Slug: "yearly", Name: "Yearly", Price: types.USD(9999)},
			)),
			tollgate.WithPaymentProvider(payment.NewSimulator(fault.Never)),
			tollgate.WithReceiver(receiver.NewSimulator(fault.Never)),
			tollgate.WithRelayTimeout(5*time.Second),
		)

		ctx := context.Background()
		if err := gw.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer gw.Stop()

		seed(t, store)

		// Subscribe a device to a plan
		sub, err := gw.Subscribe(ctx, "device-002", "yearly")
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("subscription %s valid until %s", sub.ID, sub.EndDate.Format(time.RFC3339))

		// Check entitlement
		ok, err := gw.IsEntitled(ctx, "device-001")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("device-001 should be entitled")
		}

		// Ingest telemetry
		res, err := gw.IngestTelemetry(ctx, tollgate.TelemetryInput{
			DeviceID: "device-001",
			Metric:   "cpu",
			Value:    "42",
			Status:   telemetry.StatusOK,
			EventID:  "evt-doc",
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("telemetry %s", res.TelemetryID)

		// Relay a message
		pub, err := gw.Publish(ctx, tollgate.PublishInput{
			ClientID:       "test-client-001",
			APIKey:         "key-001",
			Message:        "hello",
			IdempotencyKey: "doc-key",
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("relay %s is %s", pub.RelayID, pub.Status)
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		var price tollgate.Money = tollgate.USD(9999)
		if got := price.String(); got != "$99.99" {
			t.Errorf("String: got %s", got)
		}
		if got := price.FormatMajor(); got != "99.99" {
			t.Errorf("FormatMajor: got %s", got)
		}
		if !types.FromMajor(price.Major(), "usd").Equal(price) {
			t.Error("major round trip")
		}
	})
}
