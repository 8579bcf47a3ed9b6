package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMigrationIndexesEnforceIdempotencyKeys(t *testing.T) {
	indexes := migrationIndexes()

	unique := map[string]string{
		colClients:   "api_key",
		colRelays:    "idempotency_key",
		colTelemetry: "event_id",
	}
	for col, field := range unique {
		found := false
		for _, idx := range indexes[col] {
			keys, ok := idx.Keys.(bson.D)
			if !ok || len(keys) != 1 || keys[0].Key != field {
				continue
			}
			found = idx.Options != nil
		}
		assert.True(t, found, "%s should carry a unique index on %s", col, field)
	}
}
