package adapter

import (
	"context"
	"fmt"

	"github.com/jacobsoderblom/krypin/internal/cap"
)

// Drivers may optionally implement a Refresh method to report state on
// demand (a poll, a startup sync). Components expose it through their
// Refresh methods, which return ErrNoRefresh when the driver has none.

// ErrNoRefresh reports a driver without refresh support.
var ErrNoRefresh = fmt.Errorf("adapter: driver does not support refresh")

// SwitchRefresher is the optional refresh hook for switch drivers.
type SwitchRefresher interface {
	Refresh(ctx context.Context) (cap.SwitchState, error)
}

// Refresh asks the driver for its current state and publishes it.
func (c *SwitchComponent) Refresh(ctx context.Context) error {
	r, ok := c.driver.(SwitchRefresher)
	if !ok {
		return ErrNoRefresh
	}
	state, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	return c.PublishState(ctx, state, nil)
}

// LightRefresher is the optional refresh hook for light drivers.
type LightRefresher interface {
	Refresh(ctx context.Context) (cap.LightState, error)
}

// Refresh asks the driver for its current state and publishes it.
func (c *LightComponent) Refresh(ctx context.Context) error {
	r, ok := c.driver.(LightRefresher)
	if !ok {
		return ErrNoRefresh
	}
	state, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	return c.PublishState(ctx, state, nil)
}

// HvacRefresher is the optional refresh hook for HVAC drivers.
type HvacRefresher interface {
	Refresh(ctx context.Context) (cap.HvacState, error)
}

// Refresh asks the driver for its current state and publishes it.
func (c *HvacComponent) Refresh(ctx context.Context) error {
	r, ok := c.driver.(HvacRefresher)
	if !ok {
		return ErrNoRefresh
	}
	state, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	return c.PublishState(ctx, state, nil)
}

// RobotVacRefresher is the optional refresh hook for vacuum drivers.
type RobotVacRefresher interface {
	Refresh(ctx context.Context) (cap.RobotVacState, error)
}

// Refresh asks the driver for its current state and publishes it.
func (c *RobotVacComponent) Refresh(ctx context.Context) error {
	r, ok := c.driver.(RobotVacRefresher)
	if !ok {
		return ErrNoRefresh
	}
	state, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	return c.PublishState(ctx, state, nil)
}

// Refresh republishes the binary sensor's current reading. Binary
// sensor drivers always expose their current state, so refresh is not
// optional for them.
func (c *BinarySensorComponent) Refresh(ctx context.Context) error {
	state, err := c.driver.CurrentState(ctx)
	if err != nil {
		return err
	}
	return c.PublishState(ctx, state)
}
