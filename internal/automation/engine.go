package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacobsoderblom/krypin/internal/bus"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/metrics"
	"github.com/jacobsoderblom/krypin/internal/model"
	"github.com/jacobsoderblom/krypin/internal/storage"
)

// Engine evaluates stored automations against incoming trigger events.
// For every enabled automation whose trigger matches, conditions run
// in order (short-circuiting on the first false) and then actions run
// in order. An action failure aborts the remainder of that
// automation's actions but never affects sibling automations.
type Engine struct {
	store   Store
	storage storage.Storage
	bus     bus.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine wires an engine. logger and m may be nil.
func NewEngine(store Store, st storage.Storage, b bus.Bus, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, storage: st, bus: b, logger: logger, metrics: m}
}

// Create stores a new automation and returns it with its assigned ID
// and timestamps.
func (e *Engine) Create(ctx context.Context, newA NewAutomation) (Automation, error) {
	now := time.Now().UTC()
	enabled := true
	if newA.Enabled != nil {
		enabled = *newA.Enabled
	}
	a := Automation{
		ID:          NewID(),
		Name:        newA.Name,
		Description: newA.Description,
		Trigger:     newA.Trigger,
		Conditions:  newA.Conditions,
		Actions:     newA.Actions,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Insert(ctx, a); err != nil {
		return Automation{}, fmt.Errorf("create automation: %w", err)
	}
	return a, nil
}

// List returns all stored automations.
func (e *Engine) List(ctx context.Context) ([]Automation, error) {
	return e.store.List(ctx)
}

// Get returns one automation by ID.
func (e *Engine) Get(ctx context.Context, id ID) (Automation, error) {
	return e.store.Get(ctx, id)
}

// SetEnabled flips an automation's enabled flag.
func (e *Engine) SetEnabled(ctx context.Context, id ID, enabled bool) (Automation, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return Automation{}, err
	}
	a.Enabled = enabled
	a.UpdatedAt = time.Now().UTC()
	if err := e.store.Update(ctx, a); err != nil {
		return Automation{}, fmt.Errorf("set enabled: %w", err)
	}
	return a, nil
}

// HandleEvent runs every enabled automation matched by event. A
// failure inside one automation is logged and the next automation
// still runs.
func (e *Engine) HandleEvent(ctx context.Context, event Event) error {
	automations, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("handle event: list automations: %w", err)
	}
	for _, a := range automations {
		if !a.Enabled || !triggerMatches(a.Trigger, event) {
			continue
		}
		hold, err := e.conditionsHold(ctx, a.Conditions, event)
		if err != nil {
			e.logger.Warn("automation condition evaluation failed",
				"automation", a.ID, "name", a.Name, "error", err)
			continue
		}
		if !hold {
			continue
		}
		if err := e.executeActions(ctx, a, event); err != nil {
			e.logger.Warn("automation action failed",
				"automation", a.ID, "name", a.Name, "error", err)
		}
	}
	return nil
}

// TestRun is the outcome of TestAutomation.
type TestRun struct {
	AutomationID ID     `json:"automation_id"`
	Executed     bool   `json:"executed"`
	Reason       string `json:"reason,omitempty"`
}

// TestAutomation evaluates one automation against event, executing its
// actions when trigger and conditions pass. Side effects happen only
// after both pass; if an action fails, the error is returned and the
// actions that ran before it keep their effects.
func (e *Engine) TestAutomation(ctx context.Context, id ID, event Event) (TestRun, error) {
	a, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return TestRun{AutomationID: id, Reason: "automation not found"}, nil
	}
	if err != nil {
		return TestRun{}, err
	}
	if !triggerMatches(a.Trigger, event) {
		return TestRun{AutomationID: id, Reason: "trigger did not match"}, nil
	}
	hold, err := e.conditionsHold(ctx, a.Conditions, event)
	if err != nil {
		return TestRun{}, err
	}
	if !hold {
		return TestRun{AutomationID: id, Reason: "conditions failed"}, nil
	}
	if err := e.executeActions(ctx, a, event); err != nil {
		return TestRun{}, err
	}
	return TestRun{AutomationID: id, Executed: true}, nil
}

func triggerMatches(t Trigger, event Event) bool {
	switch t.Type {
	case TriggerManual:
		return event.Type == EventManual
	case TriggerTime:
		return event.Type == EventTimeFired && t.Cron == event.Cron
	case TriggerHeartbeat:
		return event.Type == EventHeartbeat
	case TriggerMqttTopic:
		return event.Type == EventMqttMessage && bus.TopicMatches(t.Pattern, event.Topic)
	case TriggerStateChange:
		if event.Type != EventStateChanged || t.EntityID == nil || event.EntityID == nil {
			return false
		}
		if *t.EntityID != *event.EntityID {
			return false
		}
		if t.From != nil && !jsonEqual(t.From, event.From) {
			return false
		}
		if t.To != nil && !jsonEqual(t.To, event.To) {
			return false
		}
		return true
	}
	return false
}

func (e *Engine) conditionsHold(ctx context.Context, conditions []Condition, event Event) (bool, error) {
	for _, c := range conditions {
		hold, err := e.conditionHolds(ctx, c, event)
		if err != nil {
			return false, err
		}
		if !hold {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) conditionHolds(ctx context.Context, c Condition, event Event) (bool, error) {
	switch c.Type {
	case CondAlways:
		return true, nil
	case CondEntityStateEquals:
		if c.EntityID == nil {
			return false, nil
		}
		// A state change for the entity in question is compared
		// directly; any other event consults the persisted state.
		if event.Type == EventStateChanged && event.EntityID != nil && *event.EntityID == *c.EntityID {
			return jsonEqual(event.To, c.Value), nil
		}
		st, err := e.storage.LatestEntityState(ctx, *c.EntityID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("condition state lookup: %w", err)
		}
		return jsonEqual(st.Value, c.Value), nil
	case CondPayloadEquals:
		if event.Type != EventMqttMessage {
			return false, nil
		}
		v, ok := evalPointer(c.Path, event.Payload)
		if !ok {
			return false, nil
		}
		return jsonEqual(v, c.Value), nil
	}
	return false, nil
}

// executeActions runs a's actions in order, failing fast on the first
// error.
func (e *Engine) executeActions(ctx context.Context, a Automation, event Event) error {
	for i, action := range a.Actions {
		if err := e.executeAction(ctx, action, event); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Type, err)
		}
	}
	e.metrics.AutomationRun()
	return nil
}

// storageState builds the record written by a set_entity_state action.
// Automation writes stamp source = "automation" and use now for both
// timestamps.
func storageState(entityID model.EntityID, action Action, now time.Time) model.EntityState {
	return model.EntityState{
		EntityID:    entityID,
		Value:       action.Value,
		Attributes:  action.Attributes,
		LastChanged: now,
		LastUpdated: now,
		Source:      "automation",
	}
}

func (e *Engine) executeAction(ctx context.Context, action Action, event Event) error {
	switch action.Type {
	case ActionSetEntityState:
		if action.EntityID == nil {
			return errors.New("set_entity_state: missing entity_id")
		}
		now := time.Now().UTC()
		return e.storage.SetEntityState(ctx, storageState(*action.EntityID, action, now))
	case ActionPublish:
		payload, err := contract.Encode(action.Payload)
		if err != nil {
			return fmt.Errorf("publish_bus_message: %w", err)
		}
		return e.bus.Publish(ctx, action.Topic, payload)
	case ActionLog:
		e.logger.Info(action.Message, "event", event.Type, "topic", event.Topic, "cron", event.Cron)
		return nil
	}
	return fmt.Errorf("unknown action type %q", action.Type)
}
