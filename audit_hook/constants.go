package audithook

// Action constants for audit events.
const (
	// Entitlement actions
	ActionEntitlementDenied = "entitlement.denied"

	// Telemetry actions
	ActionTelemetryIngested = "telemetry.ingested"
	ActionTelemetryRejected = "telemetry.rejected"

	// Relay actions
	ActionRelayPublished = "relay.published"
	ActionRelayDelivered = "relay.delivered"
	ActionRelayFailed    = "relay.failed"
	ActionRelayReplayed  = "relay.replayed"

	// Billing actions
	ActionSubscriptionCreated = "subscription.created"
	ActionPaymentFailed       = "payment.failed"
)

// Resource constants for audit events.
const (
	ResourceDevice       = "device"
	ResourceTelemetry    = "telemetry"
	ResourceRelay        = "relay"
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
)

// Category constants for audit events.
const (
	CategoryAccess    = "access"
	CategoryIngestion = "ingestion"
	CategoryDelivery  = "delivery"
	CategoryBilling   = "billing"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
