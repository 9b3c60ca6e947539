// Package mqtt publishes accepted detection records to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"pharmascan/internal/config"
	"pharmascan/internal/logger"
	"pharmascan/internal/models"
)

var (
	// ErrNotConnected is returned by Publish before a successful Connect.
	ErrNotConnected = errors.New("not connected to MQTT broker")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt operation timed out")
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Config holds the broker settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// ConfigFrom extracts the MQTT section of the app config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// brokerClient is the part of paho.Client the publisher uses.
type brokerClient interface {
	Connect() paho.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Recorder counts publish attempts. Metrics implement it.
type Recorder interface {
	RecordPublish(err error)
}

// Message is the JSON body published for each record.
type Message struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Code           string    `json:"code"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Valid          bool      `json:"valid"`
	Pharmaceutical bool      `json:"pharmaceutical"`
}

// Publisher sends records to "<topic>/<symbology>".
type Publisher struct {
	config    Config
	client    brokerClient
	newClient func(*paho.ClientOptions) brokerClient
	recorder  Recorder
	logger    *logger.Logger
	mu        sync.Mutex
}

// NewPublisher creates a disconnected publisher. recorder may be nil.
func NewPublisher(cfg Config, recorder Recorder, logger *logger.Logger) *Publisher {
	return &Publisher{
		config:    cfg,
		newClient: func(o *paho.ClientOptions) brokerClient { return paho.NewClient(o) },
		recorder:  recorder,
		logger:    logger,
	}
}

// Connect dials the broker and waits for the connection or ctx.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.logger.Warning("Connection to MQTT broker %s lost: %v", p.config.Broker, err)
	})

	client := p.newClient(opts)
	if err := wait(ctx, client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.config.Broker, err)
	}
	p.client = client
	p.logger.Info("📡 Connected to MQTT broker %s", p.config.Broker)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Publish sends one record. QoS 1, not retained.
func (p *Publisher) Publish(ctx context.Context, rec models.DetectionRecord) error {
	err := p.publish(ctx, rec)
	if p.recorder != nil {
		p.recorder.RecordPublish(err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, rec models.DetectionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	body, err := json.Marshal(Message{
		ID:             rec.ID,
		SessionID:      rec.SessionID,
		Code:           rec.Payload,
		Type:           string(rec.Symbology),
		Timestamp:      rec.Timestamp,
		Valid:          rec.IsValid,
		Pharmaceutical: rec.IsPharmaceutical,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", p.config.Topic, rec.Symbology)
	if err := wait(ctx, p.client.Publish(topic, 1, false, body), publishTimeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
