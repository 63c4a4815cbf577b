package hub

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jacobsoderblom/krypin/internal/automation"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/model"
)

// StartSubscribers launches the hub's long-lived subscriber tasks.
// Each task is isolated: a decode or storage failure increments its
// error counter, logs, and moves on. A task only ends when ctx is
// cancelled or the bus shuts down.
func (h *Hub) StartSubscribers(ctx context.Context) error {
	if err := h.startDeviceSubscriber(ctx); err != nil {
		return err
	}
	if err := h.startEntitySubscriber(ctx); err != nil {
		return err
	}
	if err := h.startStateSubscriber(ctx); err != nil {
		return err
	}
	if err := h.startHeartbeatSubscriber(ctx); err != nil {
		return err
	}
	return h.startMqttEventSubscriber(ctx)
}

func (h *Hub) startDeviceSubscriber(ctx context.Context) error {
	msgs, err := h.Bus.Subscribe(ctx, contract.TopicDeviceAnnounce)
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			announce, err := contract.DecodeDeviceAnnounce(msg.Payload)
			if err != nil {
				h.Metrics.SubscriberError("device", "decode")
				h.logger.Warn("bad device announce payload", "error", err)
				continue
			}
			device := model.Device{
				ID:           announce.ID,
				Name:         announce.Name,
				Adapter:      announce.Adapter,
				Manufacturer: announce.Manufacturer,
				Model:        announce.Model,
				SWVersion:    announce.SWVersion,
				HWVersion:    announce.HWVersion,
				Area:         announce.Area,
				Metadata:     announce.Metadata,
			}
			if err := h.Storage.UpsertDevice(ctx, device); err != nil {
				h.Metrics.SubscriberError("device", "storage")
				h.logger.Warn("device upsert failed", "device_id", device.ID, "error", err)
			}
		}
	}()
	return nil
}

func (h *Hub) startEntitySubscriber(ctx context.Context) error {
	msgs, err := h.Bus.Subscribe(ctx, contract.TopicEntityAnnounce)
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			announce, err := contract.DecodeEntityAnnounce(msg.Payload)
			if err != nil {
				h.Metrics.SubscriberError("entity", "decode")
				h.logger.Warn("bad entity announce payload", "error", err)
				continue
			}
			entity := model.Entity{
				ID:         announce.ID,
				DeviceID:   announce.DeviceID,
				Name:       announce.Name,
				Domain:     announce.Domain,
				Icon:       announce.Icon,
				Key:        announce.Key,
				Attributes: announce.Attributes,
			}
			if err := h.Storage.UpsertEntity(ctx, entity); err != nil {
				h.Metrics.SubscriberError("entity", "storage")
				h.logger.Warn("entity upsert failed", "entity_id", entity.ID, "error", err)
			}
		}
	}()
	return nil
}

func (h *Hub) startStateSubscriber(ctx context.Context) error {
	msgs, err := h.Bus.Subscribe(ctx, contract.TopicStateUpdatePrefix+"*")
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			update, err := contract.DecodeStateUpdate(msg.Payload)
			if err != nil {
				h.Metrics.SubscriberError("state", "decode")
				h.logger.Warn("bad state update payload", "topic", msg.Topic, "error", err)
				continue
			}

			// Previous value feeds the state change trigger event.
			var from any
			if prev, err := h.Storage.LatestEntityState(ctx, update.EntityID); err == nil {
				from = prev.Value
			}

			state := model.EntityState{
				EntityID:    update.EntityID,
				Value:       update.Value,
				Attributes:  update.Attributes,
				LastChanged: update.TS,
				LastUpdated: update.TS,
				Source:      update.Source,
			}
			if err := h.Storage.SetEntityState(ctx, state); err != nil {
				h.Metrics.SubscriberError("state", "storage")
				h.logger.Warn("state set failed", "entity_id", update.EntityID, "error", err)
				continue
			}

			if h.Engine != nil {
				event := automation.StateChanged(update.EntityID, from, update.Value)
				if err := h.Engine.HandleEvent(ctx, event); err != nil {
					h.Metrics.SubscriberError("state", "automation")
					h.logger.Warn("automation state dispatch failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (h *Hub) startHeartbeatSubscriber(ctx context.Context) error {
	msgs, err := h.Bus.Subscribe(ctx, contract.TopicHeartbeat)
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			hb, err := contract.DecodeHeartbeat(msg.Payload)
			if err != nil {
				h.Metrics.SubscriberError("heartbeat", "decode")
				h.logger.Warn("bad heartbeat payload", "error", err)
				continue
			}
			if h.Engine == nil {
				continue
			}
			if err := h.Engine.HandleEvent(ctx, automation.HeartbeatAt(hb.TS)); err != nil {
				h.Metrics.SubscriberError("heartbeat", "automation")
				h.logger.Warn("automation heartbeat dispatch failed", "error", err)
			}
		}
	}()
	return nil
}

// startMqttEventSubscriber maps bus traffic outside the hub's own
// krypin.* namespace to MqttMessage trigger events so MqttTopic
// automations can react to raw adapter traffic.
func (h *Hub) startMqttEventSubscriber(ctx context.Context) error {
	msgs, err := h.Bus.Subscribe(ctx, "*")
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			if strings.HasPrefix(msg.Topic, "krypin.") {
				continue
			}
			if h.Engine == nil {
				continue
			}
			var payload any
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				// Non-JSON payloads still fire topic triggers; the
				// payload is just opaque to conditions.
				payload = string(msg.Payload)
			}
			if err := h.Engine.HandleEvent(ctx, automation.MqttMessage(msg.Topic, payload)); err != nil {
				h.Metrics.SubscriberError("mqtt", "automation")
				h.logger.Warn("automation mqtt dispatch failed", "topic", msg.Topic, "error", err)
			}
		}
	}()
	return nil
}
