package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/cap"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// RobotVacDriver is the capability interface a vacuum adapter
// implements.
type RobotVacDriver interface {
	Describe() cap.RobotVacDescription
	Apply(ctx context.Context, cmd cap.RobotVacCommand) (cap.RobotVacState, error)
}

// RobotVacComponent announces a vacuum entity, receives its commands,
// and republishes driver state.
type RobotVacComponent struct {
	component
	driver RobotVacDriver
}

// NewRobotVacComponent wires a vacuum component.
func NewRobotVacComponent(ctx *Context, device DeviceMeta, entity EntityMeta, driver RobotVacDriver) *RobotVacComponent {
	return &RobotVacComponent{
		component: component{ctx: ctx, device: device, entity: entity, domain: model.DomainRobotVacuum},
		driver:    driver,
	}
}

// Start announces the device and entity and begins the command loop.
func (c *RobotVacComponent) Start(ctx context.Context) error {
	if err := c.announce(ctx); err != nil {
		return err
	}
	return c.runCommandLoop(ctx, c.handleCommand)
}

func (c *RobotVacComponent) handleCommand(ctx context.Context, raw map[string]any, correlation *uuid.UUID) error {
	cmd, err := cap.ParseRobotVacCommand(raw)
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

// PublishState serializes a typed vacuum state as a StateUpdate and
// publishes it.
func (c *RobotVacComponent) PublishState(ctx context.Context, state cap.RobotVacState, correlation *uuid.UUID) error {
	attrs := stateAttrs(correlation)
	if state.BatteryLevel != nil {
		attrs["battery"] = int(*state.BatteryLevel)
	}
	if state.FanPower != nil {
		attrs["fan_power"] = int(*state.FanPower)
	}
	return c.ctx.PublishState(ctx, contract.StateUpdate{
		EntityID:   c.entity.ID,
		Value:      string(state.Status),
		Attributes: attrs,
		TS:         time.Now().UTC(),
		Source:     "adapter-sdk:robotvac",
	})
}
