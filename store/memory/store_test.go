package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSub(deviceID string, start time.Time, days int, status subscription.Status) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:    types.NewEntityAt(start),
		ID:        id.NewSubscriptionID(),
		DeviceID:  deviceID,
		PlanID:    "yearly",
		Status:    status,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, days),
	}
}

func TestDevices(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := &device.Device{Entity: types.NewEntityAt(base), ID: "dev-1", Status: device.StatusInactive}
	require.NoError(t, s.CreateDevice(ctx, d))
	assert.ErrorIs(t, s.CreateDevice(ctx, d), tollgate.ErrAlreadyExists)

	later := base.Add(time.Hour)
	require.NoError(t, s.RefreshDevice(ctx, "dev-1", later))

	got, err := s.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, device.StatusActive, got.Status)
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetDevice(ctx, "ghost")
	assert.ErrorIs(t, err, tollgate.ErrDeviceNotFound)
	assert.ErrorIs(t, s.RefreshDevice(ctx, "ghost", later), tollgate.ErrDeviceNotFound)
}

func TestActiveSubscription(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		subs    []*subscription.Subscription
		at      time.Time
		wantIdx int
		wantErr error
	}{
		{
			name:    "none",
			at:      base,
			wantErr: tollgate.ErrNoActiveSubscription,
		},
		{
			name:    "active covers instant",
			subs:    []*subscription.Subscription{newSub("dev-1", base, 30, subscription.StatusActive)},
			at:      base.AddDate(0, 0, 10),
			wantIdx: 0,
		},
		{
			name:    "end date inclusive",
			subs:    []*subscription.Subscription{newSub("dev-1", base, 30, subscription.StatusActive)},
			at:      base.AddDate(0, 0, 30),
			wantIdx: 0,
		},
		{
			name:    "expired",
			subs:    []*subscription.Subscription{newSub("dev-1", base, 30, subscription.StatusActive)},
			at:      base.AddDate(0, 0, 31),
			wantErr: tollgate.ErrNoActiveSubscription,
		},
		{
			name:    "canceled ignored",
			subs:    []*subscription.Subscription{newSub("dev-1", base, 30, subscription.StatusCanceled)},
			at:      base,
			wantErr: tollgate.ErrNoActiveSubscription,
		},
		{
			name:    "other device ignored",
			subs:    []*subscription.Subscription{newSub("dev-2", base, 30, subscription.StatusActive)},
			at:      base,
			wantErr: tollgate.ErrNoActiveSubscription,
		},
		{
			name: "latest start wins",
			subs: []*subscription.Subscription{
				newSub("dev-1", base, 365, subscription.StatusActive),
				newSub("dev-1", base.AddDate(0, 0, 5), 365, subscription.StatusActive),
			},
			at:      base.AddDate(0, 0, 6),
			wantIdx: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, sub := range tt.subs {
				require.NoError(t, s.CreateSubscription(ctx, sub))
			}

			got, err := s.GetActiveSubscription(ctx, "dev-1", tt.at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subs[tt.wantIdx].ID, got.ID)
		})
	}
}

func TestListSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := range 4 {
		status := subscription.StatusActive
		if i == 1 {
			status = subscription.StatusCanceled
		}
		require.NoError(t, s.CreateSubscription(ctx, newSub("dev-1", base.AddDate(0, 0, i), 30, status)))
	}

	all, err := s.ListSubscriptions(ctx, "dev-1", subscription.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].StartDate.After(all[3].StartDate), "newest first")

	active, err := s.ListSubscriptions(ctx, "dev-1", subscription.ListOpts{Status: subscription.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	paged, err := s.ListSubscriptions(ctx, "dev-1", subscription.ListOpts{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	beyond, err := s.ListSubscriptions(ctx, "dev-1", subscription.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestClients(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := &client.Client{Entity: types.NewEntityAt(base), ID: "cli-1", APIKey: "secret", Status: client.StatusActive}
	require.NoError(t, s.CreateClient(ctx, c))

	dup := *c
	dup.ID = "cli-2"
	assert.ErrorIs(t, s.CreateClient(ctx, &dup), tollgate.ErrAlreadyExists, "api key is unique")

	got, err := s.GetClientByAPIKey(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "cli-1", got.ID)

	_, err = s.GetClientByAPIKey(ctx, "nope")
	assert.ErrorIs(t, err, tollgate.ErrClientNotFound)
	_, err = s.GetClient(ctx, "cli-2")
	assert.ErrorIs(t, err, tollgate.ErrClientNotFound)
}

func TestRelayLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &relay.Record{
		Entity:         types.NewEntityAt(base),
		ID:             id.NewRelayID(),
		ClientID:       "cli-1",
		Message:        "hello",
		Meta:           map[string]any{"k": "v"},
		IdempotencyKey: "key-1",
		Status:         relay.StatusPending,
	}
	require.NoError(t, s.CreateRelay(ctx, r))

	other := *r
	other.ID = id.NewRelayID()
	assert.ErrorIs(t, s.CreateRelay(ctx, &other), tollgate.ErrAlreadyExists)

	got, err := s.GetRelayByKey(ctx, "key-1")
	require.NoError(t, err)
	got.Meta["k"] = "mutated"

	done := base.Add(time.Second)
	require.NoError(t, s.CompleteRelay(ctx, r.ID, relay.StatusSent, done))
	assert.ErrorIs(t, s.CompleteRelay(ctx, r.ID, relay.StatusFailed, done), tollgate.ErrInvalidTransition)
	assert.ErrorIs(t, s.CompleteRelay(ctx, id.NewRelayID(), relay.StatusSent, done), tollgate.ErrRelayNotFound)

	got, err = s.GetRelay(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, relay.StatusSent, got.Status)
	require.NotNil(t, got.LastAttempt)
	assert.True(t, got.LastAttempt.Equal(done))
	assert.Equal(t, "v", got.Meta["k"], "stored meta is isolated from callers")
}

func TestCompleteRelayRejectsPending(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &relay.Record{ID: id.NewRelayID(), IdempotencyKey: "k", Status: relay.StatusPending}
	require.NoError(t, s.CreateRelay(ctx, r))
	assert.ErrorIs(t, s.CompleteRelay(ctx, r.ID, relay.StatusPending, base), tollgate.ErrInvalidTransition)
}

func TestRelayKeyRace(t *testing.T) {
	ctx := context.Background()
	s := New()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateRelay(ctx, &relay.Record{ID: id.NewRelayID(), IdempotencyKey: "same", Status: relay.StatusPending})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, tollgate.ErrAlreadyExists)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTelemetry(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := range 3 {
		rec := &telemetry.Record{
			Entity:    types.NewEntityAt(base),
			ID:        id.NewTelemetryID(),
			DeviceID:  "dev-1",
			Metric:    "temp",
			Value:     "21.5",
			Status:    telemetry.StatusOK,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			EventID:   "evt-" + string(rune('a'+i)),
		}
		require.NoError(t, s.CreateTelemetry(ctx, rec))
	}

	dup := &telemetry.Record{ID: id.NewTelemetryID(), DeviceID: "dev-1", EventID: "evt-a"}
	assert.ErrorIs(t, s.CreateTelemetry(ctx, dup), tollgate.ErrAlreadyExists)

	got, err := s.GetTelemetryByEvent(ctx, "evt-b")
	require.NoError(t, err)
	assert.Equal(t, "evt-b", got.EventID)

	byID, err := s.GetTelemetry(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, byID.ID)

	list, err := s.ListTelemetry(ctx, "dev-1", telemetry.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "evt-c", list[0].EventID)

	_, err = s.GetTelemetryByEvent(ctx, "missing")
	assert.ErrorIs(t, err, tollgate.ErrTelemetryNotFound)
}

func TestPingAfterClose(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(ctx), tollgate.ErrStoreClosed)
}
