package postgres

import (
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

// ==================== Device models ====================

type deviceModel struct {
	grove.BaseModel `grove:"table:tollgate_devices"`

	ID        string    `grove:"id,pk"`
	Status    string    `grove:"status"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toDeviceModel(d *device.Device) *deviceModel {
	return &deviceModel{
		ID:        d.ID,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromDeviceModel(m *deviceModel) *device.Device {
	return &device.Device{
		Entity: types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:     m.ID,
		Status: device.Status(m.Status),
	}
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tollgate_subscriptions"`

	ID          string    `grove:"id,pk"`
	DeviceID    string    `grove:"device_id"`
	PlanID      string    `grove:"plan_id"`
	Status      string    `grove:"status"`
	StartDate   time.Time `grove:"start_date"`
	EndDate     time.Time `grove:"end_date"`
	ProviderRef string    `grove:"provider_ref"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:          s.ID.String(),
		DeviceID:    s.DeviceID,
		PlanID:      s.PlanID,
		Status:      string(s.Status),
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		ProviderRef: s.ProviderRef,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          subID,
		DeviceID:    m.DeviceID,
		PlanID:      m.PlanID,
		Status:      subscription.Status(m.Status),
		StartDate:   m.StartDate,
		EndDate:     m.EndDate,
		ProviderRef: m.ProviderRef,
	}, nil
}

// ==================== Client models ====================

type clientModel struct {
	grove.BaseModel `grove:"table:tollgate_clients"`

	ID        string    `grove:"id,pk"`
	APIKey    string    `grove:"api_key"`
	Name      string    `grove:"name"`
	Status    string    `grove:"status"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toClientModel(c *client.Client) *clientModel {
	return &clientModel{
		ID:        c.ID,
		APIKey:    c.APIKey,
		Name:      c.Name,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromClientModel(m *clientModel) *client.Client {
	return &client.Client{
		Entity: types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:     m.ID,
		APIKey: m.APIKey,
		Name:   m.Name,
		Status: client.Status(m.Status),
	}
}

// ==================== Relay models ====================

type relayModel struct {
	grove.BaseModel `grove:"table:tollgate_relay_records"`

	ID             string         `grove:"id,pk"`
	ClientID       string         `grove:"client_id"`
	Message        string         `grove:"message"`
	Meta           map[string]any `grove:"meta,type:jsonb"`
	IdempotencyKey string         `grove:"idempotency_key"`
	Status         string         `grove:"status"`
	LastAttempt    *time.Time     `grove:"last_attempt"`
	CreatedAt      time.Time      `grove:"created_at"`
	UpdatedAt      time.Time      `grove:"updated_at"`
}

func toRelayModel(r *relay.Record) *relayModel {
	meta := r.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return &relayModel{
		ID:             r.ID.String(),
		ClientID:       r.ClientID,
		Message:        r.Message,
		Meta:           meta,
		IdempotencyKey: r.IdempotencyKey,
		Status:         string(r.Status),
		LastAttempt:    r.LastAttempt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRelayModel(m *relayModel) (*relay.Record, error) {
	relayID, err := id.ParseRelayID(m.ID)
	if err != nil {
		return nil, err
	}

	return &relay.Record{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             relayID,
		ClientID:       m.ClientID,
		Message:        m.Message,
		Meta:           m.Meta,
		IdempotencyKey: m.IdempotencyKey,
		Status:         relay.Status(m.Status),
		LastAttempt:    m.LastAttempt,
	}, nil
}

// ==================== Telemetry models ====================

type telemetryModel struct {
	grove.BaseModel `grove:"table:tollgate_telemetry_records"`

	ID        string    `grove:"id,pk"`
	DeviceID  string    `grove:"device_id"`
	Metric    string    `grove:"metric"`
	Value     string    `grove:"value"`
	Status    string    `grove:"status"`
	Timestamp time.Time `grove:"ts"`
	EventID   string    `grove:"event_id"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toTelemetryModel(r *telemetry.Record) *telemetryModel {
	return &telemetryModel{
		ID:        r.ID.String(),
		DeviceID:  r.DeviceID,
		Metric:    r.Metric,
		Value:     r.Value,
		Status:    string(r.Status),
		Timestamp: r.Timestamp,
		EventID:   r.EventID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromTelemetryModel(m *telemetryModel) (*telemetry.Record, error) {
	telID, err := id.ParseTelemetryID(m.ID)
	if err != nil {
		return nil, err
	}

	return &telemetry.Record{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        telID,
		DeviceID:  m.DeviceID,
		Metric:    m.Metric,
		Value:     m.Value,
		Status:    telemetry.Status(m.Status),
		Timestamp: m.Timestamp,
		EventID:   m.EventID,
	}, nil
}
