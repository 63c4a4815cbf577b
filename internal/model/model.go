// Package model defines the persistent records the hub stores: areas,
// devices, entities, and entity state. Identifiers are opaque UUIDs
// compared by value.
package model

import (
	"time"

	"github.com/google/uuid"
)

// AreaID identifies an area.
type AreaID uuid.UUID

// DeviceID identifies a device.
type DeviceID uuid.UUID

// EntityID identifies an entity.
type EntityID uuid.UUID

// NewAreaID returns a random AreaID.
func NewAreaID() AreaID { return AreaID(uuid.New()) }

// NewDeviceID returns a random DeviceID.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

// NewEntityID returns a random EntityID.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

func (id AreaID) String() string   { return uuid.UUID(id).String() }
func (id DeviceID) String() string { return uuid.UUID(id).String() }
func (id EntityID) String() string { return uuid.UUID(id).String() }

// ParseAreaID parses a UUID string into an AreaID.
func ParseAreaID(s string) (AreaID, error) {
	u, err := uuid.Parse(s)
	return AreaID(u), err
}

// ParseDeviceID parses a UUID string into a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	u, err := uuid.Parse(s)
	return DeviceID(u), err
}

// ParseEntityID parses a UUID string into an EntityID.
func ParseEntityID(s string) (EntityID, error) {
	u, err := uuid.Parse(s)
	return EntityID(u), err
}

func (id AreaID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id DeviceID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EntityID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *AreaID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = AreaID(u)
	return nil
}

func (id *DeviceID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = DeviceID(u)
	return nil
}

func (id *EntityID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = EntityID(u)
	return nil
}

// Area is a named location. Areas form a forest via Parent.
type Area struct {
	ID     AreaID  `json:"id"`
	Name   string  `json:"name"`
	Parent *AreaID `json:"parent,omitempty"`
}

// Device is a physical or logical device announced by an adapter.
// Devices are upserted by ID and never deleted by the hub.
type Device struct {
	ID           DeviceID       `json:"id"`
	Name         string         `json:"name"`
	Adapter      string         `json:"adapter"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	Model        string         `json:"model,omitempty"`
	SWVersion    string         `json:"sw_version,omitempty"`
	HWVersion    string         `json:"hw_version,omitempty"`
	Area         *AreaID        `json:"area,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EntityDomain classifies what kind of thing an entity is.
type EntityDomain string

const (
	DomainLight        EntityDomain = "light"
	DomainSwitch       EntityDomain = "switch"
	DomainSensor       EntityDomain = "sensor"
	DomainBinarySensor EntityDomain = "binary_sensor"
	DomainButton       EntityDomain = "button"
	DomainCover        EntityDomain = "cover"
	DomainFan          EntityDomain = "fan"
	DomainLock         EntityDomain = "lock"
	DomainMediaPlayer  EntityDomain = "media_player"
	DomainClimate      EntityDomain = "climate"
	DomainRobotVacuum  EntityDomain = "robot_vacuum"
	DomainOther        EntityDomain = "other"
)

// Valid reports whether d is one of the known domains.
func (d EntityDomain) Valid() bool {
	switch d {
	case DomainLight, DomainSwitch, DomainSensor, DomainBinarySensor,
		DomainButton, DomainCover, DomainFan, DomainLock,
		DomainMediaPlayer, DomainClimate, DomainRobotVacuum, DomainOther:
		return true
	}
	return false
}

// Entity is the smallest addressable unit of control or observation
// attached to a device. Attributes carry per-domain feature flags and
// limits (features bitmask, min_mireds, max_temp_c, inverted, ...).
type Entity struct {
	ID         EntityID       `json:"id"`
	DeviceID   DeviceID       `json:"device_id"`
	Name       string         `json:"name"`
	Domain     EntityDomain   `json:"domain"`
	Icon       string         `json:"icon,omitempty"`
	Key        string         `json:"key,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EntityState is one record in an entity's append-only state history.
// The latest view is the record with the greatest LastUpdated.
type EntityState struct {
	EntityID    EntityID       `json:"entity_id"`
	Value       any            `json:"value"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Source      string         `json:"source,omitempty"`
}
