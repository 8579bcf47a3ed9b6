// Package memory implements store.Store with in-process maps. Unique
// indexes mirror the SQL backends so idempotency conflicts behave the same.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	devices       map[string]device.Device
	subscriptions map[string]subscription.Subscription
	clients       map[string]client.Client
	clientsByKey  map[string]string

	relays      map[string]relay.Record
	relaysByKey map[string]string
	telemetry   map[string]telemetry.Record
	telemetryBy map[string]string
}

func New() *Store {
	return &Store{
		devices:       make(map[string]device.Device),
		subscriptions: make(map[string]subscription.Subscription),
		clients:       make(map[string]client.Client),
		clientsByKey:  make(map[string]string),
		relays:        make(map[string]relay.Record),
		relaysByKey:   make(map[string]string),
		telemetry:     make(map[string]telemetry.Record),
		telemetryBy:   make(map[string]string),
	}
}

// ==================== Device Store ====================

func (s *Store) CreateDevice(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[d.ID]; exists {
		return tollgate.ErrAlreadyExists
	}
	s.devices[d.ID] = *d
	return nil
}

func (s *Store) GetDevice(_ context.Context, deviceID string) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, tollgate.ErrDeviceNotFound
	}
	return &d, nil
}

func (s *Store) RefreshDevice(_ context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return tollgate.ErrDeviceNotFound
	}
	d.Status = device.StatusActive
	d.TouchAt(at)
	s.devices[deviceID] = d
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return tollgate.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = *sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, tollgate.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *Store) GetActiveSubscription(_ context.Context, deviceID string, at time.Time) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.DeviceID != deviceID || !sub.ActiveAt(at) {
			continue
		}
		if best == nil || sub.StartDate.After(best.StartDate) {
			sub := sub
			best = &sub
		}
	}
	if best == nil {
		return nil, tollgate.ErrNoActiveSubscription
	}
	return best, nil
}

func (s *Store) ListSubscriptions(_ context.Context, deviceID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.DeviceID != deviceID {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		sub := sub
		result = append(result, &sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.After(result[j].StartDate) })

	return page(result, opts.Offset, opts.Limit), nil
}

// ==================== Client Store ====================

func (s *Store) CreateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.ID]; exists {
		return tollgate.ErrAlreadyExists
	}
	if _, exists := s.clientsByKey[c.APIKey]; exists {
		return tollgate.ErrAlreadyExists
	}
	s.clients[c.ID] = *c
	s.clientsByKey[c.APIKey] = c.ID
	return nil
}

func (s *Store) GetClient(_ context.Context, clientID string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, tollgate.ErrClientNotFound
	}
	return &c, nil
}

func (s *Store) GetClientByAPIKey(_ context.Context, apiKey string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clientID, ok := s.clientsByKey[apiKey]
	if !ok {
		return nil, tollgate.ErrClientNotFound
	}
	c := s.clients[clientID]
	return &c, nil
}

// ==================== Relay Store ====================

func (s *Store) CreateRelay(_ context.Context, r *relay.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.relaysByKey[r.IdempotencyKey]; exists {
		return tollgate.ErrAlreadyExists
	}
	if _, exists := s.relays[r.ID.String()]; exists {
		return tollgate.ErrAlreadyExists
	}
	cp := *r
	cp.Meta = maps.Clone(r.Meta)
	s.relays[r.ID.String()] = cp
	s.relaysByKey[r.IdempotencyKey] = r.ID.String()
	return nil
}

func (s *Store) GetRelay(_ context.Context, relayID id.RelayID) (*relay.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.relays[relayID.String()]
	if !ok {
		return nil, tollgate.ErrRelayNotFound
	}
	return cloneRelay(r), nil
}

func (s *Store) GetRelayByKey(_ context.Context, idempotencyKey string) (*relay.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	relayID, ok := s.relaysByKey[idempotencyKey]
	if !ok {
		return nil, tollgate.ErrRelayNotFound
	}
	return cloneRelay(s.relays[relayID]), nil
}

func (s *Store) CompleteRelay(_ context.Context, relayID id.RelayID, status relay.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.relays[relayID.String()]
	if !ok {
		return tollgate.ErrRelayNotFound
	}
	if !r.Status.CanTransition(status) {
		return tollgate.ErrInvalidTransition
	}
	at = at.UTC()
	r.Status = status
	r.LastAttempt = &at
	r.TouchAt(at)
	s.relays[relayID.String()] = r
	return nil
}

// ==================== Telemetry Store ====================

func (s *Store) CreateTelemetry(_ context.Context, r *telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.telemetryBy[r.EventID]; exists {
		return tollgate.ErrAlreadyExists
	}
	if _, exists := s.telemetry[r.ID.String()]; exists {
		return tollgate.ErrAlreadyExists
	}
	s.telemetry[r.ID.String()] = *r
	s.telemetryBy[r.EventID] = r.ID.String()
	return nil
}

func (s *Store) GetTelemetry(_ context.Context, telemetryID id.TelemetryID) (*telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.telemetry[telemetryID.String()]
	if !ok {
		return nil, tollgate.ErrTelemetryNotFound
	}
	return &r, nil
}

func (s *Store) GetTelemetryByEvent(_ context.Context, eventID string) (*telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	telemetryID, ok := s.telemetryBy[eventID]
	if !ok {
		return nil, tollgate.ErrTelemetryNotFound
	}
	r := s.telemetry[telemetryID]
	return &r, nil
}

func (s *Store) ListTelemetry(_ context.Context, deviceID string, opts telemetry.ListOpts) ([]*telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*telemetry.Record, 0)
	for _, r := range s.telemetry {
		if r.DeviceID == deviceID {
			r := r
			result = append(result, &r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })

	return page(result, opts.Offset, opts.Limit), nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tollgate.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ==================== Helpers ====================

func cloneRelay(r relay.Record) *relay.Record {
	r.Meta = maps.Clone(r.Meta)
	return &r
}

func page[T any](items []T, offset, limit int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
