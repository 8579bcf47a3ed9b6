// Package tollgate provides an entitlement-gated ingestion and relay gateway
// for Go applications.
//
// Tollgate is designed as a library first. The cmd/tollgate binary wraps it
// in an HTTP service, but the engine can be embedded directly. It provides:
//
//   - Entitlement checks for devices backed by paid subscriptions
//   - Idempotent telemetry ingestion keyed by event id
//   - Idempotent message relay with bounded retry and exponential backoff
//   - A billing workflow that charges a payment provider and activates a
//     subscription
//   - Plugin hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tollgate"
//	    "github.com/xraph/tollgate/store/memory"
//	)
//
//	gw := tollgate.New(memory.New())
//	if err := gw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Stop()
//
// # Core Concepts
//
// A device is entitled while it is ACTIVE and holds an ACTIVE subscription
// whose end date has not passed:
//
//	ok, err := gw.IsEntitled(ctx, "device-001")
//
// Telemetry from entitled devices is stored once per event id. Resubmitting
// the same event returns the original record id:
//
//	res, err := gw.IngestTelemetry(ctx, tollgate.TelemetryInput{
//	    DeviceID: "device-001",
//	    Metric:   "cpu",
//	    Value:    "42",
//	    Status:   telemetry.StatusOK,
//	    EventID:  eventID,
//	})
//
// Relay messages are recorded as PENDING under their idempotency key, then
// delivered with up to three attempts. The record ends SENT or FAILED and a
// repeated key returns that outcome without delivering again:
//
//	res, err := gw.Publish(ctx, tollgate.PublishInput{
//	    ClientID:       "test-client-001",
//	    APIKey:         apiKey,
//	    Message:        "hello",
//	    IdempotencyKey: key,
//	})
//
// Subscribing charges the payment provider once and opens a 365-day term:
//
//	sub, err := gw.Subscribe(ctx, "device-001", "yearly")
//
// # Concurrency
//
// Every call runs on the caller's goroutine. Duplicate keys submitted
// concurrently are resolved by the store's unique indexes: one request wins
// and the others observe a replay.
//
// # TypeID
//
// Generated identifiers are TypeIDs:
//
//	sub_01h2xcejqtf2nbrexx3vqjhp41  // Subscription ID
//	rly_01h2xcejqtf2nbrexx3vqjhp41  // Relay record ID
//	tel_01h455vb4pex5vsknk084sn02q  // Telemetry record ID
//
// Device and client ids are provisioned externally and stay plain strings.
package tollgate
