package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/config"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/store/memory"
)

func TestSeedFixtures(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, seedFixtures(ctx, s, now))
	// Second run is a no-op.
	require.NoError(t, seedFixtures(ctx, s, now))

	d, err := s.GetDevice(ctx, seedActiveDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusActive, d.Status)

	d, err = s.GetDevice(ctx, seedInactiveDevice)
	require.NoError(t, err)
	assert.Equal(t, device.StatusInactive, d.Status)

	sub, err := s.GetActiveSubscription(ctx, seedActiveDevice, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(1, 0, 0), sub.EndDate)

	c, err := s.GetClientByAPIKey(ctx, seedClientKey)
	require.NoError(t, err)
	assert.Equal(t, seedClientID, c.ID)

	rec, err := s.GetTelemetryByEvent(ctx, seedEventID)
	require.NoError(t, err)
	assert.Equal(t, seedActiveDevice, rec.DeviceID)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = "cassandra"

	_, err := openStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}
