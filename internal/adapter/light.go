package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/cap"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// LightDriver is the capability interface a light adapter implements.
type LightDriver interface {
	Describe() cap.LightDescription
	Apply(ctx context.Context, cmd cap.LightCommand) (cap.LightState, error)
}

// LightComponent announces a light entity, receives its commands, and
// republishes driver state.
type LightComponent struct {
	component
	driver LightDriver
}

// NewLightComponent wires a light component.
func NewLightComponent(ctx *Context, device DeviceMeta, entity EntityMeta, driver LightDriver) *LightComponent {
	return &LightComponent{
		component: component{ctx: ctx, device: device, entity: entity, domain: model.DomainLight},
		driver:    driver,
	}
}

// Start announces the device and entity and begins the command loop.
func (c *LightComponent) Start(ctx context.Context) error {
	if err := c.announce(ctx); err != nil {
		return err
	}
	return c.runCommandLoop(ctx, c.handleCommand)
}

func (c *LightComponent) handleCommand(ctx context.Context, raw map[string]any, correlation *uuid.UUID) error {
	cmd, err := cap.ParseLightCommand(raw)
	if err != nil {
		return err
	}
	desc := c.driver.Describe()
	if err := desc.Validate(cmd); err != nil {
		return err
	}
	state, err := c.driver.Apply(ctx, cmd)
	if err != nil {
		return err
	}
	return c.PublishState(ctx, state, correlation)
}

// PublishState serializes a typed light state as a StateUpdate and
// publishes it.
func (c *LightComponent) PublishState(ctx context.Context, state cap.LightState, correlation *uuid.UUID) error {
	attrs := stateAttrs(correlation)
	if state.Brightness != nil {
		attrs["brightness"] = int(*state.Brightness)
	}
	if state.Color != nil {
		switch state.Color.Kind {
		case cap.ColorTemperature:
			attrs["mireds"] = int(state.Color.Mireds)
		case cap.ColorRGB:
			attrs["rgb"] = []any{int(state.Color.RGB.R), int(state.Color.RGB.G), int(state.Color.RGB.B)}
		}
	}
	return c.ctx.PublishState(ctx, contract.StateUpdate{
		EntityID:   c.entity.ID,
		Value:      state.On,
		Attributes: attrs,
		TS:         time.Now().UTC(),
		Source:     "adapter-sdk:light",
	})
}
