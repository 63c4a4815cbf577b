// Package contract defines the normalized messages adapters and the
// hub exchange over the bus, and the canonical topics they travel on.
// Payloads are UTF-8 JSON. Decoders tolerate unknown fields; missing
// required fields are a decode failure.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/model"
)

// Fixed topic names and per-entity topic prefixes.
const (
	TopicDeviceAnnounce    = "krypin.device.announce"
	TopicEntityAnnounce    = "krypin.entity.announce"
	TopicStateUpdatePrefix = "krypin.state.update."
	TopicCommandPrefix     = "krypin.command."
	TopicHeartbeat         = "krypin.hub.heartbeat"
)

// StateUpdateTopic returns the state update topic for an entity.
func StateUpdateTopic(id model.EntityID) string {
	return TopicStateUpdatePrefix + id.String()
}

// CommandTopic returns the command topic for an entity.
func CommandTopic(id model.EntityID) string {
	return TopicCommandPrefix + id.String()
}

// DeviceAnnounce declares the existence of a device.
type DeviceAnnounce struct {
	ID           model.DeviceID `json:"id"`
	Name         string         `json:"name"`
	Adapter      string         `json:"adapter"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	Model        string         `json:"model,omitempty"`
	SWVersion    string         `json:"sw_version,omitempty"`
	HWVersion    string         `json:"hw_version,omitempty"`
	Area         *model.AreaID  `json:"area,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EntityAnnounce declares the existence of an entity on a device.
type EntityAnnounce struct {
	ID         model.EntityID     `json:"id"`
	DeviceID   model.DeviceID     `json:"device_id"`
	Name       string             `json:"name"`
	Domain     model.EntityDomain `json:"domain"`
	Icon       string             `json:"icon,omitempty"`
	Key        string             `json:"key,omitempty"`
	Attributes map[string]any     `json:"attributes,omitempty"`
}

// StateUpdate reports a new state for an entity. TS is produced in UTC
// by the publisher and is authoritative for both last_changed and
// last_updated on the consumer side.
type StateUpdate struct {
	EntityID   model.EntityID `json:"entity_id"`
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
	TS         time.Time      `json:"ts"`
	Source     string         `json:"source,omitempty"`
}

// CommandSet asks the owning adapter to perform an action on an
// entity. CorrelationID, when set, is echoed into the resulting state
// update so callers can match request and response.
type CommandSet struct {
	Action        string     `json:"action"`
	Value         any        `json:"value"`
	CorrelationID *uuid.UUID `json:"correlation_id,omitempty"`
}

// Heartbeat is the hub's periodic liveness message.
type Heartbeat struct {
	TS time.Time `json:"ts"`
}

// Encode serializes any contract message as JSON.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode contract message: %w", err)
	}
	return b, nil
}

var zeroUUID uuid.UUID

// DecodeDeviceAnnounce parses and validates a device announce payload.
func DecodeDeviceAnnounce(payload []byte) (DeviceAnnounce, error) {
	var v DeviceAnnounce
	if err := json.Unmarshal(payload, &v); err != nil {
		return DeviceAnnounce{}, fmt.Errorf("decode device announce: %w", err)
	}
	if uuid.UUID(v.ID) == zeroUUID {
		return DeviceAnnounce{}, errors.New("decode device announce: missing id")
	}
	if v.Name == "" {
		return DeviceAnnounce{}, errors.New("decode device announce: missing name")
	}
	if v.Adapter == "" {
		return DeviceAnnounce{}, errors.New("decode device announce: missing adapter")
	}
	return v, nil
}

// DecodeEntityAnnounce parses and validates an entity announce payload.
func DecodeEntityAnnounce(payload []byte) (EntityAnnounce, error) {
	var v EntityAnnounce
	if err := json.Unmarshal(payload, &v); err != nil {
		return EntityAnnounce{}, fmt.Errorf("decode entity announce: %w", err)
	}
	if uuid.UUID(v.ID) == zeroUUID {
		return EntityAnnounce{}, errors.New("decode entity announce: missing id")
	}
	if uuid.UUID(v.DeviceID) == zeroUUID {
		return EntityAnnounce{}, errors.New("decode entity announce: missing device_id")
	}
	if v.Name == "" {
		return EntityAnnounce{}, errors.New("decode entity announce: missing name")
	}
	if !v.Domain.Valid() {
		return EntityAnnounce{}, fmt.Errorf("decode entity announce: unknown domain %q", v.Domain)
	}
	return v, nil
}

// DecodeStateUpdate parses and validates a state update payload.
func DecodeStateUpdate(payload []byte) (StateUpdate, error) {
	var v StateUpdate
	if err := json.Unmarshal(payload, &v); err != nil {
		return StateUpdate{}, fmt.Errorf("decode state update: %w", err)
	}
	if uuid.UUID(v.EntityID) == zeroUUID {
		return StateUpdate{}, errors.New("decode state update: missing entity_id")
	}
	if v.TS.IsZero() {
		return StateUpdate{}, errors.New("decode state update: missing ts")
	}
	return v, nil
}

// DecodeCommandSet parses a command payload. Action may be absent on
// the wire; the capability mappers supply the per-domain default.
func DecodeCommandSet(payload []byte) (CommandSet, error) {
	var v CommandSet
	if err := json.Unmarshal(payload, &v); err != nil {
		return CommandSet{}, fmt.Errorf("decode command: %w", err)
	}
	return v, nil
}

// DecodeHeartbeat parses and validates a heartbeat payload.
func DecodeHeartbeat(payload []byte) (Heartbeat, error) {
	var v Heartbeat
	if err := json.Unmarshal(payload, &v); err != nil {
		return Heartbeat{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	if v.TS.IsZero() {
		return Heartbeat{}, errors.New("decode heartbeat: missing ts")
	}
	return v, nil
}
