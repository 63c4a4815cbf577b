// Package automation stores declarative automations and evaluates them
// against the hub's live event stream. An automation couples one
// trigger with an ordered list of conditions and actions; triggers,
// conditions, and actions are closed tagged unions with a JSON
// representation keyed by a "type" field.
package automation

import (
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/model"
)

// ID identifies an automation.
type ID uuid.UUID

// NewID returns a random automation ID.
func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// ParseID parses a UUID string into an automation ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	return ID(u), err
}

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ID(u)
	return nil
}

// TriggerType discriminates the Trigger variant.
type TriggerType string

const (
	TriggerTime        TriggerType = "time"
	TriggerStateChange TriggerType = "state_change"
	TriggerMqttTopic   TriggerType = "mqtt_topic"
	TriggerHeartbeat   TriggerType = "heartbeat"
	TriggerManual      TriggerType = "manual"
)

// Trigger decides which events fire an automation. Only the fields of
// the active Type are meaningful.
type Trigger struct {
	Type TriggerType `json:"type"`
	// Cron is matched literally against TimeFired events; the engine
	// does not parse cron expressions.
	Cron     string          `json:"cron,omitempty"`
	EntityID *model.EntityID `json:"entity_id,omitempty"`
	From     any             `json:"from,omitempty"`
	To       any             `json:"to,omitempty"`
	Pattern  string          `json:"pattern,omitempty"`
}

// ConditionType discriminates the Condition variant.
type ConditionType string

const (
	CondAlways            ConditionType = "always"
	CondEntityStateEquals ConditionType = "entity_state_equals"
	CondPayloadEquals     ConditionType = "payload_equals"
)

// Condition guards an automation run after its trigger matched.
type Condition struct {
	Type     ConditionType   `json:"type"`
	EntityID *model.EntityID `json:"entity_id,omitempty"`
	Value    any             `json:"value,omitempty"`
	// Path is an RFC 6901 JSON Pointer evaluated against an MQTT
	// event's payload.
	Path string `json:"path,omitempty"`
}

// ActionType discriminates the Action variant.
type ActionType string

const (
	ActionSetEntityState ActionType = "set_entity_state"
	ActionPublish        ActionType = "publish_bus_message"
	ActionLog            ActionType = "log"
)

// Action is one step of an automation run.
type Action struct {
	Type       ActionType      `json:"type"`
	EntityID   *model.EntityID `json:"entity_id,omitempty"`
	Value      any             `json:"value,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Topic      string          `json:"topic,omitempty"`
	Payload    any             `json:"payload,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Automation is a stored definition. Definitions are created,
// enabled/disabled, and replaced whole.
type Automation struct {
	ID          ID          `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Trigger     Trigger     `json:"trigger"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Actions     []Action    `json:"actions"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewAutomation is the creation payload; the engine assigns the ID and
// timestamps.
type NewAutomation struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Trigger     Trigger     `json:"trigger"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Actions     []Action    `json:"actions"`
	Enabled     *bool       `json:"enabled,omitempty"` // nil defaults to true
}

// EventType discriminates the Event variant.
type EventType string

const (
	EventTimeFired    EventType = "time_fired"
	EventStateChanged EventType = "state_changed"
	EventMqttMessage  EventType = "mqtt_message"
	EventHeartbeat    EventType = "heartbeat"
	EventManual       EventType = "manual"
)

// Event is a normalized trigger event fed to the engine.
type Event struct {
	Type     EventType       `json:"type"`
	Cron     string          `json:"cron,omitempty"`
	EntityID *model.EntityID `json:"entity_id,omitempty"`
	From     any             `json:"from,omitempty"`
	To       any             `json:"to,omitempty"`
	Topic    string          `json:"topic,omitempty"`
	Payload  any             `json:"payload,omitempty"`
	TS       time.Time       `json:"ts,omitzero"`
}

// TimeFired builds a time event carrying the literal cron string a
// scheduler matched.
func TimeFired(cron string) Event {
	return Event{Type: EventTimeFired, Cron: cron}
}

// StateChanged builds a state change event. from may be nil when the
// entity had no previous state.
func StateChanged(entityID model.EntityID, from, to any) Event {
	return Event{Type: EventStateChanged, EntityID: &entityID, From: from, To: to}
}

// MqttMessage builds a bus message event with a decoded JSON payload.
func MqttMessage(topic string, payload any) Event {
	return Event{Type: EventMqttMessage, Topic: topic, Payload: payload}
}

// HeartbeatAt builds a heartbeat event.
func HeartbeatAt(ts time.Time) Event {
	return Event{Type: EventHeartbeat, TS: ts}
}

// Manual builds a manual event.
func Manual() Event {
	return Event{Type: EventManual}
}
