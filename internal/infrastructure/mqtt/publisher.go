// Package mqtt публикует завершённые строки очереди результатов в брокер MQTT.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config — параметры подключения к брокеру.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Username string
	Password string
}

// Payload — сообщение о проверенном объекте.
type Payload struct {
	FrameID      int64     `json:"frame_id"`
	Status       string    `json:"status"`
	SensorIn     *int      `json:"sensor_in,omitempty"`
	SensorOut    *int      `json:"sensor_out,omitempty"`
	TimestampIn  time.Time `json:"timestamp_in"`
	TimestampOut time.Time `json:"timestamp_out"`
	Detections   any       `json:"detections,omitempty"`
}

// BuildPayload преобразует строку очереди в JSON.
func BuildPayload(item entity.ResultItem) ([]byte, error) {
	return json.Marshal(Payload{
		FrameID:      item.FrameID,
		Status:       string(item.FrameStatus),
		SensorIn:     item.SensorIDIn,
		SensorOut:    item.SensorIDOut,
		TimestampIn:  item.TimestampIn,
		TimestampOut: item.TimestampOut,
		Detections:   item.Detections,
	})
}

// TopicFor возвращает топик для статуса: <topic>/ok или <topic>/ng.
func TopicFor(base string, status entity.FrameStatus) string {
	return strings.TrimRight(base, "/") + "/" + strings.ToLower(string(status))
}

// Stats — счётчики публикаций.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Publisher — приёмник результатов поверх paho.
type Publisher struct {
	cfg    Config
	client paho.Client
	log    *logger.Logger

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewPublisher создаёт публикатор; пустой ClientID заменяется случайным.
func NewPublisher(cfg Config, log *logger.Logger) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "inspector-" + uuid.NewString()[:8]
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{cfg: cfg, log: log, published: make(map[string]uint64)}
}

func (p *Publisher) Name() string { return "mqtt" }

// Connect подключается к брокеру с автоматическим переподключением.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	broker := p.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts.AddBroker(broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(paho.Client) {
		p.setConnected(true)
		p.log.Info("mqtt connection established", logger.Fields("broker", broker, "client_id", p.cfg.ClientID))
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		p.setConnected(false)
		p.log.Warn("mqtt connection lost", logger.Fields("broker", broker, logger.FieldError, err.Error()))
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.setConnected(true)
	return nil
}

// Publish отправляет строку в топик по её статусу.
func (p *Publisher) Publish(ctx context.Context, item entity.ResultItem) error {
	if !p.isConnected() {
		p.countError()
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := BuildPayload(item)
	if err != nil {
		p.countError()
		return fmt.Errorf("marshal result: %w", err)
	}

	topic := TopicFor(p.cfg.Topic, item.FrameStatus)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		p.countError()
		return ctx.Err()
	case <-timer.C:
		p.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()
	p.log.Debug("result published", logger.Fields("topic", topic, logger.FieldFrameID, item.FrameID, "size", len(payload)))
	return nil
}

// Disconnect закрывает соединение с паузой 250 мс.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.log.Info("mqtt disconnected")
	}
	p.setConnected(false)
}

func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return Stats{Connected: p.connected, Published: published, Errors: p.errors}
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Publisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

var _ port.ResultSink = (*Publisher)(nil)
