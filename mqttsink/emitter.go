// Package mqttsink publishes camera view state changes to an MQTT broker.
package mqttsink

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/torresjeff/mjpeg"
	"github.com/torresjeff/mjpeg/rand"
	"go.uber.org/zap"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// StateEvent is the retained JSON payload of <topic>/<camera>/state.
type StateEvent struct {
	Camera    string `json:"camera"`
	State     string `json:"state"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Connect dials broker (host:port) with automatic reconnection enabled.
func Connect(logger *zap.Logger, broker string, clientID string) (mqtt.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clientID == "" {
		clientID = rand.GenerateClientID("mjpegview")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("[mqtt] Connection established", zap.String("broker", broker), zap.String("clientId", clientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("[mqtt] Connection lost, will auto-reconnect", zap.String("broker", broker), zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("mqtt: connection to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "mqtt: connect")
	}
	return client, nil
}

// Emitter is a mjpeg.Subscriber. It publishes auth_required and failed events as they happen and
// a streaming event for the first frame after any other state. It is safe for concurrent use.
type Emitter struct {
	logger *zap.Logger
	client mqtt.Client
	id     string
	topic  string
	qos    byte

	mu        sync.Mutex
	streaming map[string]bool

	published atomic.Uint64
	failures  atomic.Uint64
}

func NewEmitter(logger *zap.Logger, client mqtt.Client, topic string) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		logger:    logger,
		client:    client,
		id:        rand.GenerateUuid(),
		topic:     topic,
		qos:       1,
		streaming: make(map[string]bool),
	}
}

func (e *Emitter) GetID() string {
	return e.id
}

// Topic returns the state topic of camera key.
func (e *Emitter) Topic(key string) string {
	return e.topic + "/" + key + "/state"
}

func (e *Emitter) SendFrame(key string, handle *mjpeg.DisplayHandle) {
	e.mu.Lock()
	if e.streaming[key] {
		e.mu.Unlock()
		return
	}
	e.streaming[key] = true
	e.mu.Unlock()

	e.publish(StateEvent{Camera: key, State: mjpeg.Streaming.String()})
}

func (e *Emitter) SendAuthRequired(key string) {
	e.setStreaming(key, false)
	e.publish(StateEvent{Camera: key, State: mjpeg.AuthRequired.String()})
}

func (e *Emitter) SendError(key string, message string) {
	e.setStreaming(key, false)
	e.publish(StateEvent{Camera: key, State: mjpeg.Failed.String(), Message: message})
}

// Stats returns the number of acknowledged and failed publishes.
func (e *Emitter) Stats() (published, failures uint64) {
	return e.published.Load(), e.failures.Load()
}

// Disconnect gives in-flight messages 250ms to be sent.
func (e *Emitter) Disconnect() {
	if e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("[mqtt] Disconnected")
	}
}

func (e *Emitter) setStreaming(key string, streaming bool) {
	e.mu.Lock()
	e.streaming[key] = streaming
	e.mu.Unlock()
}

// publish doesn't block the view's goroutine: the acknowledgement is awaited separately.
func (e *Emitter) publish(event StateEvent) {
	event.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(event)
	if err != nil {
		e.failures.Add(1)
		e.logger.Error("[mqtt] Error encoding event", zap.Error(err))
		return
	}
	topic := e.Topic(event.Camera)
	token := e.client.Publish(topic, e.qos, true, payload)
	go e.await(topic, token)
}

func (e *Emitter) await(topic string, token mqtt.Token) {
	if !token.WaitTimeout(publishTimeout) {
		e.failures.Add(1)
		e.logger.Warn("[mqtt] Publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		e.failures.Add(1)
		e.logger.Warn("[mqtt] Publish failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	e.published.Add(1)
	e.logger.Debug("[mqtt] Event published", zap.String("topic", topic))
}
