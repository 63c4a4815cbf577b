// Package storage materializes the hub's event stream into queryable
// records: areas, devices, entities, and an append-only entity state
// history with a latest view. Two implementations share the interface:
// an in-memory store and a Postgres store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jacobsoderblom/krypin/internal/model"
)

// ErrNotFound reports a record that does not exist. Absence is not a
// fault; callers decide whether it matters.
var ErrNotFound = errors.New("storage: not found")

// ErrReferentialIntegrity reports a write whose referenced parent
// record does not exist. Such writes are never retried automatically.
var ErrReferentialIntegrity = errors.New("storage: referential integrity")

// Storage is the hub's persistence boundary. All operations are safe
// under concurrent callers. Once SetEntityState has returned, a
// subsequent LatestEntityState on the same entity observes that record
// or a strictly later one.
type Storage interface {
	ListAreas(ctx context.Context) ([]model.Area, error)
	// UpsertArea inserts or replaces an area. A set parent must exist.
	UpsertArea(ctx context.Context, area model.Area) error
	GetArea(ctx context.Context, id model.AreaID) (model.Area, error)

	ListDevices(ctx context.Context) ([]model.Device, error)
	// UpsertDevice inserts or replaces a device. A set area must exist.
	UpsertDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, id model.DeviceID) (model.Device, error)

	ListEntities(ctx context.Context) ([]model.Entity, error)
	// UpsertEntity inserts or replaces an entity. Its device must exist.
	UpsertEntity(ctx context.Context, entity model.Entity) error
	GetEntity(ctx context.Context, id model.EntityID) (model.Entity, error)

	// SetEntityState appends one record to the entity's history. The
	// entity must exist.
	SetEntityState(ctx context.Context, state model.EntityState) error
	// LatestEntityState returns the record with the greatest
	// LastUpdated, or ErrNotFound when the entity has no history.
	LatestEntityState(ctx context.Context, id model.EntityID) (model.EntityState, error)
	// EntityStateHistory returns the most recent records first,
	// optionally filtered to LastChanged >= since, limited to limit.
	EntityStateHistory(ctx context.Context, id model.EntityID, since *time.Time, limit int) ([]model.EntityState, error)

	Close() error
}
