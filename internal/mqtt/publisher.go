// Package mqtt publishes unauthorized access alerts to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// Config holds the broker connection settings.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	Topic    string // alerts are published under Topic/<lock id>

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher sends detection alerts to the broker.
type Publisher struct {
	config Config
	client client
	mu     sync.Mutex
}

// NewPublisher creates a publisher for cfg. Call Connect before publishing.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.Topic == "" {
		cfg.Topic = "locks/alerts"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Printf("Connection to MQTT broker lost: %s, error: %v", cfg.Broker, err)
	})

	return &Publisher{config: cfg, client: paho.NewClient(opts)}
}

// Connect establishes the broker connection.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := p.client.Connect()
	if err := wait(ctx, token, p.config.ConnectTimeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", p.config.Broker, err)
	}
	log.Printf("Connected to MQTT broker: %s", p.config.Broker)
	return nil
}

// PublishDetection publishes an alert for result. Its signature matches the
// monitor's alert subscriber.
func (p *Publisher) PublishDetection(ctx context.Context, result models.DetectionResult) error {
	payload, err := json.Marshal(alert{
		LockID:     result.LockID,
		SubjectID:  result.SubjectID,
		Confidence: result.Confidence,
		DetectedAt: result.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	topic := p.config.Topic + "/" + result.LockID
	token := p.client.Publish(topic, 1, false, payload)
	if err := wait(ctx, token, p.config.PublishTimeout); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

type alert struct {
	LockID     string    `json:"lock_id"`
	SubjectID  string    `json:"subject_id"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`
}

// wait blocks until the token completes, the timeout passes or ctx ends.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
