package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/cap"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// SwitchDriver is the capability interface a switch adapter
// implements.
type SwitchDriver interface {
	Describe() cap.SwitchDescription
	Apply(ctx context.Context, cmd cap.SwitchCommand) (cap.SwitchState, error)
}

// SwitchComponent announces a switch entity, receives its commands,
// and republishes driver state.
type SwitchComponent struct {
	component
	driver SwitchDriver
}

// NewSwitchComponent wires a switch component.
func NewSwitchComponent(ctx *Context, device DeviceMeta, entity EntityMeta, driver SwitchDriver) *SwitchComponent {
	return &SwitchComponent{
		component: component{ctx: ctx, device: device, entity: entity, domain: model.DomainSwitch},
		driver:    driver,
	}
}

// Start announces the device and entity and begins the command loop.
func (c *SwitchComponent) Start(ctx context.Context) error {
	if err := c.announce(ctx); err != nil {
		return err
	}
	return c.runCommandLoop(ctx, c.handleCommand)
}

func (c *SwitchComponent) handleCommand(ctx context.Context, raw map[string]any, correlation *uuid.UUID) error {
	cmd, err := cap.ParseSwitchCommand(raw)
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

// PublishState serializes a typed switch state as a StateUpdate and
// publishes it.
func (c *SwitchComponent) PublishState(ctx context.Context, state cap.SwitchState, correlation *uuid.UUID) error {
	attrs := stateAttrs(correlation)
	if state.PowerW != nil {
		attrs["power_w"] = *state.PowerW
	}
	return c.ctx.PublishState(ctx, contract.StateUpdate{
		EntityID:   c.entity.ID,
		Value:      state.On,
		Attributes: attrs,
		TS:         time.Now().UTC(),
		Source:     "adapter-sdk:switch",
	})
}
