package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jacobsoderblom/krypin/internal/model"
)

// Memory is the in-memory store. A reader-writer lock partitions reads
// from writes; per-entity history is an append-only slice whose order
// doubles as the deterministic tiebreak for equal timestamps (the
// later insert wins).
type Memory struct {
	mu       sync.RWMutex
	areas    map[model.AreaID]model.Area
	devices  map[model.DeviceID]model.Device
	entities map[model.EntityID]model.Entity
	states   map[model.EntityID][]stateRecord
	seq      uint64
}

type stateRecord struct {
	state model.EntityState
	seq   uint64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		areas:    make(map[model.AreaID]model.Area),
		devices:  make(map[model.DeviceID]model.Device),
		entities: make(map[model.EntityID]model.Entity),
		states:   make(map[model.EntityID][]stateRecord),
	}
}

func (m *Memory) ListAreas(context.Context) ([]model.Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Area, 0, len(m.areas))
	for _, a := range m.areas {
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) UpsertArea(_ context.Context, area model.Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if area.Parent != nil {
		if _, ok := m.areas[*area.Parent]; !ok {
			return fmt.Errorf("%w: parent area %s not found", ErrReferentialIntegrity, area.Parent)
		}
	}
	m.areas[area.ID] = area
	return nil
}

func (m *Memory) GetArea(_ context.Context, id model.AreaID) (model.Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.areas[id]
	if !ok {
		return model.Area{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListDevices(context.Context) ([]model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *Memory) UpsertDevice(_ context.Context, device model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if device.Area != nil {
		if _, ok := m.areas[*device.Area]; !ok {
			return fmt.Errorf("%w: area %s not found for device", ErrReferentialIntegrity, device.Area)
		}
	}
	m.devices[device.ID] = device
	return nil
}

func (m *Memory) GetDevice(_ context.Context, id model.DeviceID) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListEntities(context.Context) ([]model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) UpsertEntity(_ context.Context, entity model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[entity.DeviceID]; !ok {
		return fmt.Errorf("%w: device %s not found for entity", ErrReferentialIntegrity, entity.DeviceID)
	}
	m.entities[entity.ID] = entity
	return nil
}

func (m *Memory) GetEntity(_ context.Context, id model.EntityID) (model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return model.Entity{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) SetEntityState(_ context.Context, state model.EntityState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[state.EntityID]; !ok {
		return fmt.Errorf("%w: entity %s not found", ErrReferentialIntegrity, state.EntityID)
	}
	m.seq++
	m.states[state.EntityID] = append(m.states[state.EntityID], stateRecord{state: state, seq: m.seq})
	return nil
}

func (m *Memory) LatestEntityState(_ context.Context, id model.EntityID) (model.EntityState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.states[id]
	if len(records) == 0 {
		return model.EntityState{}, ErrNotFound
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.state.LastUpdated.After(latest.state.LastUpdated) ||
			(r.state.LastUpdated.Equal(latest.state.LastUpdated) && r.seq > latest.seq) {
			latest = r
		}
	}
	return latest.state, nil
}

func (m *Memory) EntityStateHistory(_ context.Context, id model.EntityID, since *time.Time, limit int) ([]model.EntityState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var filtered []stateRecord
	for _, r := range m.states[id] {
		if since != nil && r.state.LastChanged.Before(*since) {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.Slice(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if !a.state.LastUpdated.Equal(b.state.LastUpdated) {
			return a.state.LastUpdated.After(b.state.LastUpdated)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	out := make([]model.EntityState, len(filtered))
	for i, r := range filtered {
		out[i] = r.state
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
