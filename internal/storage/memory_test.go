package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jacobsoderblom/krypin/internal/model"
)

func seedDevice(t *testing.T, s Storage) model.Device {
	t.Helper()
	d := model.Device{ID: model.NewDeviceID(), Name: "Hub Test Device", Adapter: "test"}
	if err := s.UpsertDevice(context.Background(), d); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	return d
}

func seedEntity(t *testing.T, s Storage, device model.Device) model.Entity {
	t.Helper()
	e := model.Entity{
		ID:       model.NewEntityID(),
		DeviceID: device.ID,
		Name:     "Test Entity",
		Domain:   model.DomainSwitch,
	}
	if err := s.UpsertEntity(context.Background(), e); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	return e
}

func TestMemoryAreaParentMustExist(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	missing := model.NewAreaID()
	err := s.UpsertArea(ctx, model.Area{ID: model.NewAreaID(), Name: "Bedroom", Parent: &missing})
	if !errors.Is(err, ErrReferentialIntegrity) {
		t.Errorf("UpsertArea with missing parent = %v, want ErrReferentialIntegrity", err)
	}

	parent := model.Area{ID: model.NewAreaID(), Name: "Upstairs"}
	if err := s.UpsertArea(ctx, parent); err != nil {
		t.Fatalf("UpsertArea parent: %v", err)
	}
	child := model.Area{ID: model.NewAreaID(), Name: "Bedroom", Parent: &parent.ID}
	if err := s.UpsertArea(ctx, child); err != nil {
		t.Errorf("UpsertArea child after parent exists: %v", err)
	}
}

func TestMemoryAreaNilParentSucceeds(t *testing.T) {
	s := NewMemory()
	if err := s.UpsertArea(context.Background(), model.Area{ID: model.NewAreaID(), Name: "Roof"}); err != nil {
		t.Errorf("UpsertArea with nil parent: %v", err)
	}
}

func TestMemoryDeviceAreaMustExist(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	missing := model.NewAreaID()
	d := model.Device{ID: model.NewDeviceID(), Name: "Lamp", Adapter: "mock", Area: &missing}
	if err := s.UpsertDevice(ctx, d); !errors.Is(err, ErrReferentialIntegrity) {
		t.Errorf("UpsertDevice with missing area = %v, want ErrReferentialIntegrity", err)
	}

	area := model.Area{ID: missing, Name: "Hall"}
	if err := s.UpsertArea(ctx, area); err != nil {
		t.Fatalf("UpsertArea: %v", err)
	}
	if err := s.UpsertDevice(ctx, d); err != nil {
		t.Errorf("UpsertDevice after area exists: %v", err)
	}
}

func TestMemoryDeviceNilAreaSucceeds(t *testing.T) {
	s := NewMemory()
	d := model.Device{ID: model.NewDeviceID(), Name: "Lamp", Adapter: "mock"}
	if err := s.UpsertDevice(context.Background(), d); err != nil {
		t.Errorf("UpsertDevice with nil area: %v", err)
	}
}

func TestMemoryEntityDeviceMustExist(t *testing.T) {
	s := NewMemory()
	e := model.Entity{ID: model.NewEntityID(), DeviceID: model.NewDeviceID(), Name: "X", Domain: model.DomainLight}
	if err := s.UpsertEntity(context.Background(), e); !errors.Is(err, ErrReferentialIntegrity) {
		t.Errorf("UpsertEntity with missing device = %v, want ErrReferentialIntegrity", err)
	}
}

func TestMemoryStateEntityMustExist(t *testing.T) {
	s := NewMemory()
	st := model.EntityState{EntityID: model.NewEntityID(), Value: true, LastChanged: time.Now(), LastUpdated: time.Now()}
	if err := s.SetEntityState(context.Background(), st); !errors.Is(err, ErrReferentialIntegrity) {
		t.Errorf("SetEntityState with missing entity = %v, want ErrReferentialIntegrity", err)
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if _, err := s.GetArea(ctx, model.NewAreaID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetArea = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDevice(ctx, model.NewDeviceID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDevice = %v, want ErrNotFound", err)
	}
	if _, err := s.GetEntity(ctx, model.NewEntityID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntity = %v, want ErrNotFound", err)
	}
	if _, err := s.LatestEntityState(ctx, model.NewEntityID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestEntityState = %v, want ErrNotFound", err)
	}
}

func TestMemoryLatestIsMaxLastUpdated(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	e := seedEntity(t, s, seedDevice(t, s))

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Insert out of timestamp order; latest must follow last_updated,
	// not insertion order.
	for _, offset := range []int{2, 0, 1} {
		st := model.EntityState{
			EntityID:    e.ID,
			Value:       offset,
			LastChanged: base.Add(time.Duration(offset) * time.Minute),
			LastUpdated: base.Add(time.Duration(offset) * time.Minute),
		}
		if err := s.SetEntityState(ctx, st); err != nil {
			t.Fatalf("SetEntityState: %v", err)
		}
	}

	latest, err := s.LatestEntityState(ctx, e.ID)
	if err != nil {
		t.Fatalf("LatestEntityState: %v", err)
	}
	if latest.Value != 2 {
		t.Errorf("latest value = %v, want 2", latest.Value)
	}
	if !latest.LastUpdated.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("latest last_updated = %v", latest.LastUpdated)
	}
}

func TestMemoryLatestTiebreakIsLaterInsert(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	e := seedEntity(t, s, seedDevice(t, s))

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range []string{"first", "second"} {
		st := model.EntityState{EntityID: e.ID, Value: v, LastChanged: ts, LastUpdated: ts}
		if err := s.SetEntityState(ctx, st); err != nil {
			t.Fatalf("SetEntityState: %v", err)
		}
	}

	latest, err := s.LatestEntityState(ctx, e.ID)
	if err != nil {
		t.Fatalf("LatestEntityState: %v", err)
	}
	if latest.Value != "second" {
		t.Errorf("tiebreak picked %v, want second", latest.Value)
	}
}

func TestMemoryHistoryNewestFirstWithSinceAndLimit(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	e := seedEntity(t, s, seedDevice(t, s))

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		ts := base.Add(time.Duration(i) * time.Minute)
		st := model.EntityState{EntityID: e.ID, Value: i, LastChanged: ts, LastUpdated: ts}
		if err := s.SetEntityState(ctx, st); err != nil {
			t.Fatalf("SetEntityState: %v", err)
		}
	}

	all, err := s.EntityStateHistory(ctx, e.ID, nil, 10)
	if err != nil {
		t.Fatalf("EntityStateHistory: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	for i, st := range all {
		if want := 4 - i; st.Value != want {
			t.Errorf("history[%d] = %v, want %d", i, st.Value, want)
		}
	}

	since := base.Add(3 * time.Minute)
	recent, err := s.EntityStateHistory(ctx, e.ID, &since, 10)
	if err != nil {
		t.Fatalf("EntityStateHistory since: %v", err)
	}
	if len(recent) != 2 || recent[0].Value != 4 || recent[1].Value != 3 {
		t.Errorf("since filter got %+v", recent)
	}

	limited, err := s.EntityStateHistory(ctx, e.ID, nil, 2)
	if err != nil {
		t.Fatalf("EntityStateHistory limit: %v", err)
	}
	if len(limited) != 2 || limited[0].Value != 4 || limited[1].Value != 3 {
		t.Errorf("limit got %+v", limited)
	}
}

func TestMemoryUpsertReplacesByID(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	d := seedDevice(t, s)

	d.Name = "Renamed"
	if err := s.UpsertDevice(ctx, d); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	got, err := s.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}
	devices, _ := s.ListDevices(ctx)
	if len(devices) != 1 {
		t.Errorf("len(devices) = %d, want 1", len(devices))
	}
}

func TestMemorySetThenLatestIsLinearizablePerEntity(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	e := seedEntity(t, s, seedDevice(t, s))

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				ts := time.Now().UTC()
				st := model.EntityState{
					EntityID:    e.ID,
					Value:       fmt.Sprintf("%d-%d", w, i),
					LastChanged: ts,
					LastUpdated: ts,
				}
				if err := s.SetEntityState(ctx, st); err != nil {
					t.Errorf("SetEntityState: %v", err)
					return
				}
				if _, err := s.LatestEntityState(ctx, e.ID); err != nil {
					t.Errorf("LatestEntityState after set: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	history, err := s.EntityStateHistory(ctx, e.ID, nil, 1000)
	if err != nil {
		t.Fatalf("EntityStateHistory: %v", err)
	}
	if len(history) != 8*50 {
		t.Errorf("history length = %d, want %d", len(history), 8*50)
	}
}
