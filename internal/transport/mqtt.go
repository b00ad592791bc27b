package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trackscan/internal/config"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

var ErrNotConnected = errors.New("mqtt not connected")

// MQTTTransport publishes JSON messages to <topic>/<event type>.
type MQTTTransport struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// MQTTStats reports publish counters per topic.
type MQTTStats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// NewMQTTTransport connects to the configured broker. The client
// reconnects on its own after a lost connection.
func NewMQTTTransport(cfg config.MQTTConfig) (*MQTTTransport, error) {
	t := &MQTTTransport{cfg: cfg, published: make(map[string]uint64)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		t.setConnected(true)
		logger.Infof("MQTT connected to %s as %s", cfg.Broker, cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		t.setConnected(false)
		logger.Warnf("MQTT connection lost, reconnecting: %v", err)
	}

	t.client = mqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	t.setConnected(true)
	return t, nil
}

func (t *MQTTTransport) setConnected(v bool) {
	t.mu.Lock()
	t.connected = v
	t.mu.Unlock()
}

func (t *MQTTTransport) fail() {
	t.mu.Lock()
	t.errors++
	t.mu.Unlock()
}

// Topic returns the topic a value is published on.
func (t *MQTTTransport) Topic(data any) string {
	if e, ok := data.(Event); ok {
		return t.cfg.Topic + "/" + string(e.Type)
	}
	return t.cfg.Topic
}

// Send marshals data to JSON and publishes it, waiting for the broker ack.
func (t *MQTTTransport) Send(data any) error {
	t.mu.RLock()
	connected := t.connected
	t.mu.RUnlock()
	if !connected {
		t.fail()
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		t.fail()
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}

	topic := t.Topic(data)
	token := t.client.Publish(topic, t.cfg.QoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		t.fail()
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		t.fail()
		return fmt.Errorf("mqtt publish failed: %w", err)
	}

	t.mu.Lock()
	t.published[topic]++
	t.mu.Unlock()
	logger.Debugf("MQTT published %d bytes to %s", len(payload), topic)
	return nil
}

// Stats returns a copy of the publish counters.
func (t *MQTTTransport) Stats() MQTTStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	published := make(map[string]uint64, len(t.published))
	for k, v := range t.published {
		published[k] = v
	}
	return MQTTStats{Connected: t.connected, Published: published, Errors: t.errors}
}

// Close disconnects with a short grace period.
func (t *MQTTTransport) Close() error {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
		logger.Infof("MQTT disconnected")
	}
	t.setConnected(false)
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
