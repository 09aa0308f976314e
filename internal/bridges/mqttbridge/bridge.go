package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/hub"
	"github.com/hearthhq/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearthhq/hearth-core/internal/job"
	"github.com/hearthhq/hearth-core/internal/service"
	"github.com/hearthhq/hearth-core/internal/state"
)

// componentName identifies the bridge in component_loaded events.
const componentName = "mqtt_bridge"

// MQTTClient is the interface for MQTT operations.
// Satisfied by *mqtt.Client; kept as an interface for mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the minimal logging interface used by the bridge.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// Config holds bridge settings.
type Config struct {
	// BaseTopic is the topic prefix; empty means mqtt.DefaultBaseTopic.
	BaseTopic string

	// QoS for outbound publishes and the service subscription.
	QoS byte
}

// Bridge mirrors hub activity onto MQTT and accepts service invocations
// from the broker.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	hub    *hub.Hub
	client MQTTClient
	topics mqtt.Topics
	qos    byte

	unsubs   []func()
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Start must be called to attach it.
func New(h *hub.Hub, client MQTTClient, cfg Config) (*Bridge, error) {
	if h == nil {
		return nil, errors.New("mqttbridge: hub is required")
	}
	if client == nil {
		return nil, errors.New("mqttbridge: mqtt client is required")
	}

	return &Bridge{
		hub:    h,
		client: client,
		topics: mqtt.Topics{Base: cfg.BaseTopic},
		qos:    cfg.QoS,
		logger: noopLogger{},
	}, nil
}

// SetLogger replaces the no-op logger.
func (b *Bridge) SetLogger(l Logger) {
	b.loggerMu.Lock()
	b.logger = l
	b.loggerMu.Unlock()
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start attaches the bus listeners and the service call subscription,
// then announces the bridge with a component_loaded event.
func (b *Bridge) Start() error {
	unsubState, err := b.hub.Bus.Listen(event.TypeStateChanged, job.KindTask, b.publishState)
	if err != nil {
		return fmt.Errorf("mqttbridge: attaching state listener: %w", err)
	}
	b.unsubs = append(b.unsubs, unsubState)

	unsubEvents, err := b.hub.Bus.Listen(event.MatchAll, job.KindTask, b.publishEvent)
	if err != nil {
		return fmt.Errorf("mqttbridge: attaching event listener: %w", err)
	}
	b.unsubs = append(b.unsubs, unsubEvents)

	if err := b.client.Subscribe(b.topics.AllServiceCalls(), b.qos, b.handleServiceCall); err != nil {
		return fmt.Errorf("mqttbridge: subscribing to service calls: %w", err)
	}

	b.hub.Bus.Fire(event.TypeComponentLoaded, map[string]any{"component": componentName})
	return nil
}

// Stop detaches the bus listeners and the broker subscription.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		for _, unsub := range b.unsubs {
			unsub()
		}
		b.unsubs = nil

		if err := b.client.Unsubscribe(b.topics.AllServiceCalls()); err != nil {
			b.log().Debug("service call unsubscribe failed", "error", err)
		}
	})
}

// publishState mirrors a state_changed event onto the retained entity
// state topic. Removals publish an empty retained payload so the broker
// drops the old value.
func (b *Bridge) publishState(_ context.Context, ev *event.Event) error {
	entityID, _ := ev.Data["entity_id"].(string)
	if entityID == "" {
		return nil
	}
	topic := b.topics.EntityState(entityID)

	st, ok := ev.Data["new_state"].(*state.State)
	if !ok || st == nil {
		return b.client.Publish(topic, nil, b.qos, true)
	}

	payload, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("mqttbridge: marshalling state for %s: %w", entityID, err)
	}
	return b.client.Publish(topic, payload, b.qos, true)
}

// publishEvent forwards every bus event to the event stream topic.
func (b *Bridge) publishEvent(_ context.Context, ev *event.Event) error {
	payload, err := json.Marshal(ev.Map())
	if err != nil {
		return fmt.Errorf("mqttbridge: marshalling event %s: %w", ev.Type, err)
	}
	return b.client.Publish(b.topics.Event(ev.Type), payload, b.qos, false)
}

// handleServiceCall invokes a service from a broker message. The call is
// fire-and-forget: delivery feedback goes to the broker only as the
// resulting call_service event on the event stream.
func (b *Bridge) handleServiceCall(topic string, payload []byte) error {
	domain, svc, ok := b.topics.SplitServiceCall(topic)
	if !ok {
		b.log().Debug("ignoring message on unrecognised service topic", "topic", topic)
		return nil
	}

	var data map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			b.log().Warn("invalid service call payload", "topic", topic, "error", err)
			return nil
		}
	}

	_, err := b.hub.Services.Call(context.Background(), domain, svc, data,
		service.WithContext(event.NewContext()),
		service.WithOrigin(event.OriginRemote))
	if err != nil {
		b.log().Warn("service call from broker failed",
			"domain", domain, "service", svc, "error", err)
	}
	return nil
}
