package events

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
}

// MQTTPublisher publishes to an MQTT broker at QoS 0.
type MQTTPublisher struct {
	client    mqtt.Client
	log       *slog.Logger
	connected atomic.Bool
}

// DialMQTT connects to the broker. The client keeps reconnecting in the
// background after the first successful connect.
func DialMQTT(cfg MQTTConfig, log *slog.Logger) (*MQTTPublisher, error) {
	p := &MQTTPublisher{log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.connected.Store(true)
		log.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.connected.Store(false)
		log.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	p.client = mqtt.NewClient(opts)
	log.Info("connecting to mqtt broker", "broker", cfg.Broker)
	token := p.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.connected.Store(true)
	return p, nil
}

// Publish sends payload without waiting for the broker. Delivery errors are
// logged when the token completes.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	if !p.connected.Load() {
		return fmt.Errorf("mqtt not connected")
	}
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.log.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

// Close disconnects with a short grace period.
func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.log.Info("mqtt disconnected")
	}
	p.connected.Store(false)
}
