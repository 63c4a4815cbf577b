package hub

import (
	"context"
	"time"

	"github.com/jacobsoderblom/krypin/internal/contract"
)

// DefaultHeartbeatInterval is used when the config does not override
// the heartbeat cadence.
const DefaultHeartbeatInterval = 30 * time.Second

// StartHeartbeat publishes a Heartbeat on the hub heartbeat topic on a
// fixed interval until ctx is cancelled.
func (h *Hub) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				payload, err := contract.Encode(contract.Heartbeat{TS: time.Now().UTC()})
				if err != nil {
					h.logger.Warn("heartbeat encode failed", "error", err)
					continue
				}
				if err := h.Bus.Publish(ctx, contract.TopicHeartbeat, payload); err != nil {
					h.logger.Warn("heartbeat publish failed", "error", err)
					continue
				}
				h.Metrics.HeartbeatPublished()
			}
		}
	}()
}
