// Package hub wires the bus, storage, and automation engine together:
// long-lived subscriber tasks that materialize bus traffic into
// storage and trigger events, the heartbeat producer, and the call
// surface the HTTP layer consumes.
package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacobsoderblom/krypin/internal/automation"
	"github.com/jacobsoderblom/krypin/internal/bus"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/metrics"
	"github.com/jacobsoderblom/krypin/internal/model"
	"github.com/jacobsoderblom/krypin/internal/storage"
)

// Hub is the process-wide state shared by every surface. Its lifecycle
// is the process lifetime; there is no reinitialization.
type Hub struct {
	Bus     bus.Bus
	Storage storage.Storage
	Engine  *automation.Engine
	Metrics *metrics.Metrics

	logger *slog.Logger
}

// New assembles a hub. logger may be nil.
func New(b bus.Bus, st storage.Storage, engine *automation.Engine, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{Bus: b, Storage: st, Engine: engine, Metrics: m, logger: logger}
}

// SendCommand publishes a CommandSet on the entity's command topic.
// The bus does not guarantee causal order between this publish and the
// adapter's state update; callers needing it pass a correlation id.
func (h *Hub) SendCommand(ctx context.Context, entityID model.EntityID, action string, value any, correlationID *uuid.UUID) error {
	if action == "" {
		action = "set"
	}
	payload, err := contract.Encode(contract.CommandSet{
		Action:        action,
		Value:         value,
		CorrelationID: correlationID,
	})
	if err != nil {
		return err
	}
	return h.Bus.Publish(ctx, contract.CommandTopic(entityID), payload)
}

// SetEntityState writes a state record directly, stamping both
// timestamps with now.
func (h *Hub) SetEntityState(ctx context.Context, entityID model.EntityID, value any, attributes map[string]any, source string) error {
	now := time.Now().UTC()
	return h.Storage.SetEntityState(ctx, model.EntityState{
		EntityID:    entityID,
		Value:       value,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
		Source:      source,
	})
}

// SubscribeEvents opens a firehose subscription on the bus.
func (h *Hub) SubscribeEvents(ctx context.Context, pattern string) (<-chan bus.Message, error) {
	return h.Bus.Subscribe(ctx, pattern)
}
