package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
	"github.com/xraph/tollgate/types"
)

// Development fixture identifiers.
const (
	seedActiveDevice   = "device-001"
	seedInactiveDevice = "device-002"
	seedClientID       = "test-client-001"
	seedClientKey      = "test-api-key-001"
	seedEventID        = "seed-event-001"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load development fixtures into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Migrate(cmd.Context()); err != nil {
			return err
		}
		if err := seedFixtures(cmd.Context(), s, time.Now()); err != nil {
			return err
		}
		logger.Info("fixtures loaded",
			"devices", []string{seedActiveDevice, seedInactiveDevice},
			"client", seedClientID,
		)
		return nil
	},
}

// seedFixtures inserts the development fixtures. Rows that already exist
// are left alone, so running it twice is harmless.
func seedFixtures(ctx context.Context, s store.Store, now time.Time) error {
	now = now.UTC()

	for _, d := range []*device.Device{
		{Entity: types.NewEntityAt(now), ID: seedActiveDevice, Status: device.StatusActive},
		{Entity: types.NewEntityAt(now), ID: seedInactiveDevice, Status: device.StatusInactive},
	} {
		if err := ignoreExisting(s.CreateDevice(ctx, d)); err != nil {
			return err
		}
	}

	if _, err := s.GetActiveSubscription(ctx, seedActiveDevice, now); errors.Is(err, tollgate.ErrNoActiveSubscription) {
		err = s.CreateSubscription(ctx, &subscription.Subscription{
			Entity:    types.NewEntityAt(now),
			ID:        id.NewSubscriptionID(),
			DeviceID:  seedActiveDevice,
			PlanID:    "yearly",
			Status:    subscription.StatusActive,
			StartDate: now,
			EndDate:   now.AddDate(1, 0, 0),
		})
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	err := ignoreExisting(s.CreateClient(ctx, &client.Client{
		Entity: types.NewEntityAt(now),
		ID:     seedClientID,
		APIKey: seedClientKey,
		Name:   "Development client",
		Status: client.StatusActive,
	}))
	if err != nil {
		return err
	}

	return ignoreExisting(s.CreateTelemetry(ctx, &telemetry.Record{
		Entity:    types.NewEntityAt(now),
		ID:        id.NewTelemetryID(),
		DeviceID:  seedActiveDevice,
		Metric:    "temperature",
		Value:     "21.5",
		Status:    telemetry.StatusOK,
		Timestamp: now,
		EventID:   seedEventID,
	}))
}

func ignoreExisting(err error) error {
	if errors.Is(err, tollgate.ErrAlreadyExists) {
		return nil
	}
	return err
}
