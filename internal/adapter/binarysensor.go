package adapter

import (
	"context"
	"time"

	"github.com/jacobsoderblom/krypin/internal/cap"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// BinarySensorDriver is the capability interface a binary sensor
// adapter implements. Binary sensors accept no commands; the driver
// exposes its current reading and a stream of updates instead.
type BinarySensorDriver interface {
	Describe() cap.BinarySensorDescription
	CurrentState(ctx context.Context) (cap.BinarySensorState, error)
	// Updates returns a channel of raw driver readings. The component
	// forwards each as a StateUpdate until the channel closes or the
	// component's context is cancelled.
	Updates(ctx context.Context) (<-chan cap.BinarySensorState, error)
}

// BinarySensorComponent announces a binary sensor entity and forwards
// driver readings as state updates, applying the description's
// inversion.
type BinarySensorComponent struct {
	component
	driver BinarySensorDriver
}

// NewBinarySensorComponent wires a binary sensor component.
func NewBinarySensorComponent(ctx *Context, device DeviceMeta, entity EntityMeta, driver BinarySensorDriver) *BinarySensorComponent {
	return &BinarySensorComponent{
		component: component{ctx: ctx, device: device, entity: entity, domain: model.DomainBinarySensor},
		driver:    driver,
	}
}

// Start announces the device and entity, publishes the current
// reading, and begins forwarding driver updates.
func (c *BinarySensorComponent) Start(ctx context.Context) error {
	if err := c.announce(ctx); err != nil {
		return err
	}

	initial, err := c.driver.CurrentState(ctx)
	if err != nil {
		return err
	}
	if err := c.PublishState(ctx, initial); err != nil {
		return err
	}

	updates, err := c.driver.Updates(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-updates:
				if !ok {
					return
				}
				if err := c.PublishState(ctx, state); err != nil {
					c.ctx.logger.Warn("binary sensor publish failed",
						"entity_id", c.entity.ID, "error", err)
				}
			}
		}
	}()
	return nil
}

// PublishState serializes a raw driver reading as a StateUpdate. When
// the description is inverted, the published value is the logical
// negation of the driver value and the inverted flag rides along in
// the attributes.
func (c *BinarySensorComponent) PublishState(ctx context.Context, state cap.BinarySensorState) error {
	desc := c.driver.Describe()
	attrs := make(map[string]any)
	if desc.DeviceClass != "" {
		attrs["device_class"] = string(desc.DeviceClass)
	}
	effective := state.On
	if desc.Inverted {
		attrs["inverted"] = true
		effective = !state.On
	}
	return c.ctx.PublishState(ctx, contract.StateUpdate{
		EntityID:   c.entity.ID,
		Value:      effective,
		Attributes: attrs,
		TS:         time.Now().UTC(),
		Source:     "adapter-sdk:binary-sensor",
	})
}
