package bus

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/jacobsoderblom/krypin/internal/metrics"
)

// MQTTConfig carries the connection settings for the MQTT bus.
type MQTTConfig struct {
	Host     string
	Port     int
	ClientID string
}

// MQTT is the remote bus. It wraps an MQTT broker with at-least-once
// QoS, subscribes to "#", and fans incoming messages out through an
// in-process broadcast identical to the InMemory variant. Topic
// hierarchy on the wire uses "/"; the hub's native separator is ".".
// Translation happens at this boundary in both directions.
type MQTT struct {
	cm     *autopaho.ConnectionManager
	local  *InMemory
	logger *slog.Logger
	cancel context.CancelFunc
}

// wireTopic converts a hub topic to its broker form.
func wireTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

// hubTopic converts a broker topic to its hub form.
func hubTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// ConnectMQTT connects to the broker and starts the receive loop.
// The connection manager reconnects with a short backoff on its own;
// transient event-loop errors never reach surviving subscribers.
// metrics and logger may be nil.
func ConnectMQTT(ctx context.Context, cfg MQTTConfig, m *metrics.Metrics, logger *slog.Logger) (*MQTT, error) {
	if logger == nil {
		logger = slog.Default()
	}
	port := cfg.Port
	if port == 0 {
		port = 1883
	}
	brokerURL, err := url.Parse(fmt.Sprintf("mqtt://%s:%d", cfg.Host, port))
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker url: %w", err)
	}

	busCtx, cancel := context.WithCancel(context.Background())
	b := &MQTT{
		local:  NewInMemory(m),
		logger: logger,
		cancel: cancel,
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("mqtt bus connected", "broker", brokerURL.String())
			subCtx, subCancel := context.WithTimeout(busCtx, 10*time.Second)
			defer subCancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: "#", QoS: 1}},
			}); err != nil {
				logger.Warn("mqtt wildcard subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	b.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		_ = b.local.Publish(busCtx, hubTopic(pr.Packet.Topic), pr.Packet.Payload)
		return true, nil
	})

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// The manager keeps retrying in the background.
		logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}

	return b, nil
}

// Publish sends payload to the broker at QoS 1. A broker failure
// surfaces to the publisher as an error.
func (b *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   wireTopic(topic),
		QoS:     1,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a pattern on the internal broadcast. All broker
// traffic arrives through the "#" wildcard, so no broker round trip is
// needed per subscription.
func (b *MQTT) Subscribe(ctx context.Context, pattern string) (<-chan Message, error) {
	return b.local.Subscribe(ctx, pattern)
}

// Close disconnects from the broker and closes every subscription.
func (b *MQTT) Close() error {
	b.cancel()
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.cm.Disconnect(disconnectCtx)
	if closeErr := b.local.Close(); err == nil {
		err = closeErr
	}
	return err
}
