package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jacobsoderblom/krypin/internal/adapter"
	"github.com/jacobsoderblom/krypin/internal/bus"
	"github.com/jacobsoderblom/krypin/internal/cap"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// mockSwitchDriver is a trivial in-memory relay used by the
// -mock-adapter flag to exercise the whole announce/command/state
// loop without hardware.
type mockSwitchDriver struct {
	entityID model.EntityID

	mu sync.Mutex
	on bool
}

func (d *mockSwitchDriver) Describe() cap.SwitchDescription {
	return cap.SwitchDescription{
		EntityID: d.entityID,
		Features: cap.SwitchOnOff | cap.SwitchToggleable,
	}
}

func (d *mockSwitchDriver) Apply(_ context.Context, cmd cap.SwitchCommand) (cap.SwitchState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch cmd.Kind {
	case cap.SwitchToggle:
		d.on = !d.on
	default:
		d.on = cmd.On
	}
	return cap.SwitchState{On: d.on}, nil
}

// startMockAdapter announces a mock switch device and starts its
// command loop on the hub's own bus.
func startMockAdapter(ctx context.Context, b bus.Bus, logger *slog.Logger) error {
	deviceID := model.NewDeviceID()
	entityID := model.NewEntityID()

	component := adapter.NewSwitchComponent(
		adapter.NewContext(b, logger),
		adapter.DeviceMeta{
			ID:           deviceID,
			Name:         "Mock Switch",
			Adapter:      "mock",
			Manufacturer: "Krypin",
			Model:        "MockRelay-1",
		},
		adapter.EntityMeta{
			ID:   entityID,
			Name: "Mock Relay",
			Attributes: map[string]any{
				"toggle": true,
			},
		},
		&mockSwitchDriver{entityID: entityID},
	)
	if err := component.Start(ctx); err != nil {
		return err
	}
	logger.Info("mock adapter running", "device_id", deviceID, "entity_id", entityID)
	return nil
}
