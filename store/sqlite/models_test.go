package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/types"
)

func TestRelayModelRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	rec := &relay.Record{
		Entity:         types.NewEntityAt(at),
		ID:             id.NewRelayID(),
		ClientID:       "cli-1",
		Message:        "hello",
		Meta:           map[string]any{"source": "edge"},
		IdempotencyKey: "k-1",
		Status:         relay.StatusSent,
		LastAttempt:    &at,
	}

	got, err := fromRelayModel(toRelayModel(rec))
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "edge", got.Meta["source"])
	require.NotNil(t, got.LastAttempt)
	assert.True(t, got.LastAttempt.Equal(at))
	assert.True(t, got.CreatedAt.Equal(at))
}

func TestRelayModelEmptyMeta(t *testing.T) {
	m := toRelayModel(&relay.Record{ID: id.NewRelayID(), Status: relay.StatusPending})
	assert.Equal(t, "{}", m.Meta)
	assert.Nil(t, m.LastAttempt)

	got, err := fromRelayModel(m)
	require.NoError(t, err)
	assert.Nil(t, got.Meta)
	assert.Nil(t, got.LastAttempt)
}

func TestUnixNanoOrdering(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Nanosecond)
	assert.Less(t, unixNano(a), unixNano(b))
	assert.Zero(t, unixNano(time.Time{}))
	assert.True(t, fromUnixNano(0).IsZero())
}
