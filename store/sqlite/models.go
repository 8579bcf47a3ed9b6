package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

// Timestamps are stored as unix nanoseconds so range predicates and
// ORDER BY compare numerically.

// ==================== Device models ====================

type deviceModel struct {
	grove.BaseModel `grove:"table:tollgate_devices"`

	ID        string `grove:"id,pk"`
	Status    string `grove:"status"`
	CreatedAt int64  `grove:"created_at"`
	UpdatedAt int64  `grove:"updated_at"`
}

func toDeviceModel(d *device.Device) *deviceModel {
	return &deviceModel{
		ID:        d.ID,
		Status:    string(d.Status),
		CreatedAt: unixNano(d.CreatedAt),
		UpdatedAt: unixNano(d.UpdatedAt),
	}
}

func fromDeviceModel(m *deviceModel) *device.Device {
	return &device.Device{
		Entity: entity(m.CreatedAt, m.UpdatedAt),
		ID:     m.ID,
		Status: device.Status(m.Status),
	}
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tollgate_subscriptions"`

	ID          string `grove:"id,pk"`
	DeviceID    string `grove:"device_id"`
	PlanID      string `grove:"plan_id"`
	Status      string `grove:"status"`
	StartDate   int64  `grove:"start_date"`
	EndDate     int64  `grove:"end_date"`
	ProviderRef string `grove:"provider_ref"`
	CreatedAt   int64  `grove:"created_at"`
	UpdatedAt   int64  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:          s.ID.String(),
		DeviceID:    s.DeviceID,
		PlanID:      s.PlanID,
		Status:      string(s.Status),
		StartDate:   unixNano(s.StartDate),
		EndDate:     unixNano(s.EndDate),
		ProviderRef: s.ProviderRef,
		CreatedAt:   unixNano(s.CreatedAt),
		UpdatedAt:   unixNano(s.UpdatedAt),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity:      entity(m.CreatedAt, m.UpdatedAt),
		ID:          subID,
		DeviceID:    m.DeviceID,
		PlanID:      m.PlanID,
		Status:      subscription.Status(m.Status),
		StartDate:   fromUnixNano(m.StartDate),
		EndDate:     fromUnixNano(m.EndDate),
		ProviderRef: m.ProviderRef,
	}, nil
}

// ==================== Client models ====================

type clientModel struct {
	grove.BaseModel `grove:"table:tollgate_clients"`

	ID        string `grove:"id,pk"`
	APIKey    string `grove:"api_key"`
	Name      string `grove:"name"`
	Status    string `grove:"status"`
	CreatedAt int64  `grove:"created_at"`
	UpdatedAt int64  `grove:"updated_at"`
}

func toClientModel(c *client.Client) *clientModel {
	return &clientModel{
		ID:        c.ID,
		APIKey:    c.APIKey,
		Name:      c.Name,
		Status:    string(c.Status),
		CreatedAt: unixNano(c.CreatedAt),
		UpdatedAt: unixNano(c.UpdatedAt),
	}
}

func fromClientModel(m *clientModel) *client.Client {
	return &client.Client{
		Entity: entity(m.CreatedAt, m.UpdatedAt),
		ID:     m.ID,
		APIKey: m.APIKey,
		Name:   m.Name,
		Status: client.Status(m.Status),
	}
}

// ==================== Relay models ====================

type relayModel struct {
	grove.BaseModel `grove:"table:tollgate_relay_records"`

	ID             string `grove:"id,pk"`
	ClientID       string `grove:"client_id"`
	Message        string `grove:"message"`
	Meta           string `grove:"meta"`
	IdempotencyKey string `grove:"idempotency_key"`
	Status         string `grove:"status"`
	LastAttempt    *int64 `grove:"last_attempt"`
	CreatedAt      int64  `grove:"created_at"`
	UpdatedAt      int64  `grove:"updated_at"`
}

func toRelayModel(r *relay.Record) *relayModel {
	meta := "{}"
	if len(r.Meta) > 0 {
		if b, err := json.Marshal(r.Meta); err == nil {
			meta = string(b)
		}
	}

	var last *int64
	if r.LastAttempt != nil {
		n := unixNano(*r.LastAttempt)
		last = &n
	}

	return &relayModel{
		ID:             r.ID.String(),
		ClientID:       r.ClientID,
		Message:        r.Message,
		Meta:           meta,
		IdempotencyKey: r.IdempotencyKey,
		Status:         string(r.Status),
		LastAttempt:    last,
		CreatedAt:      unixNano(r.CreatedAt),
		UpdatedAt:      unixNano(r.UpdatedAt),
	}
}

func fromRelayModel(m *relayModel) (*relay.Record, error) {
	relayID, err := id.ParseRelayID(m.ID)
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if m.Meta != "" && m.Meta != "{}" {
		_ = json.Unmarshal([]byte(m.Meta), &meta) //nolint:errcheck // best-effort
	}

	var last *time.Time
	if m.LastAttempt != nil {
		t := fromUnixNano(*m.LastAttempt)
		last = &t
	}

	return &relay.Record{
		Entity:         entity(m.CreatedAt, m.UpdatedAt),
		ID:             relayID,
		ClientID:       m.ClientID,
		Message:        m.Message,
		Meta:           meta,
		IdempotencyKey: m.IdempotencyKey,
		Status:         relay.Status(m.Status),
		LastAttempt:    last,
	}, nil
}

// ==================== Telemetry models ====================

type telemetryModel struct {
	grove.BaseModel `grove:"table:tollgate_telemetry_records"`

	ID        string `grove:"id,pk"`
	DeviceID  string `grove:"device_id"`
	Metric    string `grove:"metric"`
	Value     string `grove:"value"`
	Status    string `grove:"status"`
	Timestamp int64  `grove:"ts"`
	EventID   string `grove:"event_id"`
	CreatedAt int64  `grove:"created_at"`
	UpdatedAt int64  `grove:"updated_at"`
}

func toTelemetryModel(r *telemetry.Record) *telemetryModel {
	return &telemetryModel{
		ID:        r.ID.String(),
		DeviceID:  r.DeviceID,
		Metric:    r.Metric,
		Value:     r.Value,
		Status:    string(r.Status),
		Timestamp: unixNano(r.Timestamp),
		EventID:   r.EventID,
		CreatedAt: unixNano(r.CreatedAt),
		UpdatedAt: unixNano(r.UpdatedAt),
	}
}

func fromTelemetryModel(m *telemetryModel) (*telemetry.Record, error) {
	telID, err := id.ParseTelemetryID(m.ID)
	if err != nil {
		return nil, err
	}

	return &telemetry.Record{
		Entity:    entity(m.CreatedAt, m.UpdatedAt),
		ID:        telID,
		DeviceID:  m.DeviceID,
		Metric:    m.Metric,
		Value:     m.Value,
		Status:    telemetry.Status(m.Status),
		Timestamp: fromUnixNano(m.Timestamp),
		EventID:   m.EventID,
	}, nil
}

// ==================== Helpers ====================

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func entity(created, updated int64) types.Entity {
	return types.Entity{CreatedAt: fromUnixNano(created), UpdatedAt: fromUnixNano(updated)}
}
