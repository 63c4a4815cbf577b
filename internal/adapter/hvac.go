package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/cap"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// HvacDriver is the capability interface an HVAC adapter implements.
type HvacDriver interface {
	Describe() cap.HvacDescription
	Apply(ctx context.Context, cmd cap.HvacCommand) (cap.HvacState, error)
}

// HvacComponent announces a climate entity, receives its commands, and
// republishes driver state.
type HvacComponent struct {
	component
	driver HvacDriver
}

// NewHvacComponent wires an HVAC component.
func NewHvacComponent(ctx *Context, device DeviceMeta, entity EntityMeta, driver HvacDriver) *HvacComponent {
	return &HvacComponent{
		component: component{ctx: ctx, device: device, entity: entity, domain: model.DomainClimate},
		driver:    driver,
	}
}

// Start announces the device and entity and begins the command loop.
func (c *HvacComponent) Start(ctx context.Context) error {
	if err := c.announce(ctx); err != nil {
		return err
	}
	return c.runCommandLoop(ctx, c.handleCommand)
}

func (c *HvacComponent) handleCommand(ctx context.Context, raw map[string]any, correlation *uuid.UUID) error {
	cmd, err := cap.ParseHvacCommand(raw)
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

// PublishState serializes a typed climate state as a StateUpdate and
// publishes it.
func (c *HvacComponent) PublishState(ctx context.Context, state cap.HvacState, correlation *uuid.UUID) error {
	attrs := stateAttrs(correlation)
	if state.TargetTemp != nil {
		attrs["target_temperature_c"] = *state.TargetTemp
	}
	if state.AmbientTemp != nil {
		attrs["ambient_temperature_c"] = *state.AmbientTemp
	}
	if state.FanMode != nil {
		attrs["fan_mode"] = string(*state.FanMode)
	}
	return c.ctx.PublishState(ctx, contract.StateUpdate{
		EntityID:   c.entity.ID,
		Value:      string(state.Mode),
		Attributes: attrs,
		TS:         time.Now().UTC(),
		Source:     "adapter-sdk:hvac",
	})
}
