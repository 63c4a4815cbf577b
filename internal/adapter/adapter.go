// Package adapter is the SDK adapters build on: it standardizes how a
// (device, entity, driver) triple announces itself on the bus,
// receives commands, and republishes the resulting state.
//
// A component's receive loop is deliberately forgiving: decode,
// validation, and driver errors are logged and the offending message
// is dropped; the loop keeps running until its context is cancelled.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/bus"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// DeviceMeta describes the device a component announces.
type DeviceMeta struct {
	ID           model.DeviceID
	Name         string
	Adapter      string
	Manufacturer string
	Model        string
	SWVersion    string
	HWVersion    string
	Area         *model.AreaID
	Metadata     map[string]any
	Zigbee       *ZigbeeInfo
}

// metadataMap folds the optional zigbee block into the announce
// metadata without mutating the original map.
func (d *DeviceMeta) metadataMap() map[string]any {
	if d.Zigbee == nil {
		return d.Metadata
	}
	merged := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		merged[k] = v
	}
	merged["zigbee"] = d.Zigbee.attributeMap()
	return merged
}

// EntityMeta describes the entity a component announces.
type EntityMeta struct {
	ID         model.EntityID
	Name       string
	Icon       string
	Key        string
	Attributes map[string]any
}

// Context wraps the bus with the adapter-side publish and subscribe
// conventions.
type Context struct {
	bus    bus.Bus
	logger *slog.Logger
}

// NewContext creates an adapter context. A nil logger is replaced with
// slog.Default.
func NewContext(b bus.Bus, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{bus: b, logger: logger}
}

// Bus exposes the underlying bus for adapters with extra needs.
func (c *Context) Bus() bus.Bus { return c.bus }

// AnnounceDevice publishes a device announce.
func (c *Context) AnnounceDevice(ctx context.Context, announce contract.DeviceAnnounce) error {
	payload, err := contract.Encode(announce)
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, contract.TopicDeviceAnnounce, payload); err != nil {
		return fmt.Errorf("publish device announce: %w", err)
	}
	return nil
}

// AnnounceEntity publishes an entity announce on the canonical entity
// channel.
func (c *Context) AnnounceEntity(ctx context.Context, announce contract.EntityAnnounce) error {
	payload, err := contract.Encode(announce)
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, contract.TopicEntityAnnounce, payload); err != nil {
		return fmt.Errorf("publish entity announce: %w", err)
	}
	return nil
}

// PublishState publishes a state update on the entity's state topic.
func (c *Context) PublishState(ctx context.Context, update contract.StateUpdate) error {
	payload, err := contract.Encode(update)
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, contract.StateUpdateTopic(update.EntityID), payload); err != nil {
		return fmt.Errorf("publish state update: %w", err)
	}
	return nil
}

// component carries what every per-domain component shares.
type component struct {
	ctx    *Context
	device DeviceMeta
	entity EntityMeta
	domain model.EntityDomain
}

// announce publishes the device announce followed by the entity
// announce.
func (c *component) announce(ctx context.Context) error {
	d := &c.device
	if err := c.ctx.AnnounceDevice(ctx, contract.DeviceAnnounce{
		ID:           d.ID,
		Name:         d.Name,
		Adapter:      d.Adapter,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		SWVersion:    d.SWVersion,
		HWVersion:    d.HWVersion,
		Area:         d.Area,
		Metadata:     d.metadataMap(),
	}); err != nil {
		return err
	}
	return c.ctx.AnnounceEntity(ctx, contract.EntityAnnounce{
		ID:         c.entity.ID,
		DeviceID:   d.ID,
		Name:       c.entity.Name,
		Domain:     c.domain,
		Icon:       c.entity.Icon,
		Key:        c.entity.Key,
		Attributes: c.entity.Attributes,
	})
}

// runCommandLoop subscribes to the entity's command topic and feeds
// each decoded envelope to handle until ctx is cancelled. A bad
// message never terminates the loop.
func (c *component) runCommandLoop(ctx context.Context, handle func(context.Context, map[string]any, *uuid.UUID) error) error {
	msgs, err := c.ctx.bus.Subscribe(ctx, contract.CommandTopic(c.entity.ID))
	if err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	go func() {
		for msg := range msgs {
			var raw map[string]any
			if err := json.Unmarshal(msg.Payload, &raw); err != nil {
				c.ctx.logger.Warn("bad command payload",
					"entity_id", c.entity.ID, "error", err)
				continue
			}
			correlation := correlationID(raw)
			if err := handle(ctx, raw, correlation); err != nil {
				c.ctx.logger.Warn("command handling failed",
					"entity_id", c.entity.ID, "error", err)
			}
		}
	}()
	return nil
}

// correlationID extracts an optional correlation_id from the envelope.
func correlationID(raw map[string]any) *uuid.UUID {
	s, ok := raw["correlation_id"].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// stateAttrs starts an attribute map, echoing the correlation id of
// the command that produced the state when one was present.
func stateAttrs(correlation *uuid.UUID) map[string]any {
	attrs := make(map[string]any)
	if correlation != nil {
		attrs["correlation_id"] = correlation.String()
	}
	return attrs
}
