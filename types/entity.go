// Package types provides common types used across Tollgate.
package types

import "time"

// Entity carries the creation and last-updated timestamps shared by
// persisted records.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt creates a new Entity stamped with t.
func NewEntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.TouchAt(time.Now())
}

// TouchAt sets UpdatedAt to t.
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t.UTC()
}

// IsStale returns true if the entity hasn't been updated in the specified duration.
func (e Entity) IsStale(now time.Time, staleDuration time.Duration) bool {
	return now.Sub(e.UpdatedAt) > staleDuration
}
