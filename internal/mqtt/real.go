package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
)

// DefaultBufferSize is how many messages are kept while the broker is unreachable.
const DefaultBufferSize = 256

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	BufferSize     int
	ConnectTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed, oldest first, when it
// comes back.
type RealPublisher struct {
	client paho.Client
	topics Topics
	now    func() time.Time
	logger Logger

	mu            sync.Mutex
	buffer        *ringBuffer
	connectedOnce bool
}

func newRealPublisher(client paho.Client, topics Topics, bufferSize int, logger Logger) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &RealPublisher{
		client: client,
		topics: topics,
		now:    time.Now,
		logger: logger,
		buffer: newRingBuffer(bufferSize),
	}
}

// NewRealPublisher creates a publisher for the given broker. The broker also
// gets a retained last-will SHUTDOWN message on the system topic.
//
// An unreachable broker is not fatal: the client keeps retrying in the
// background and events are buffered until it connects.
func NewRealPublisher(opts Options, logger Logger) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "light-controller"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	p := newRealPublisher(nil, Topics{Prefix: opts.TopicPrefix}, opts.BufferSize, logger)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System(), will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		p.logger.Warn("mqtt broker not reachable yet, buffering events", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	p.logger.Info("mqtt connected", "broker", opts.Broker, "client_id", opts.ClientID)
	return p, nil
}

// PublishLight sends the state of a light, retained so new subscribers see it.
func (p *RealPublisher) PublishLight(d device.Device, at time.Time) error {
	payload, err := FormatLightPayload(d, at)
	if err != nil {
		return fmt.Errorf("format light payload: %w", err)
	}
	return p.publish(p.topics.Light(d.ID), 1, true, payload)
}

// PublishTimer reports a timer firing.
func (p *RealPublisher) PublishTimer(f schedule.Firing) error {
	payload, err := FormatTimerPayload(f)
	if err != nil {
		return fmt.Errorf("format timer payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(p.topics.Timers(), 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(p.topics.System(), 1, event.Retained, payload)
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	dropping := p.buffer.push(msg)
	p.mu.Unlock()
	if dropping {
		p.logger.Warn("mqtt buffer full, dropping oldest", "capacity", p.buffer.capacity)
	}
}

// onConnect replays buffered messages and, after a reconnect, announces it.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buffer.drainAll()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	p.mu.Unlock()

	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn("replay timed out", "topic", msg.topic)
			continue
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("replay failed", "topic", msg.topic, "error", err)
		}
	}
	if len(pending) > 0 {
		p.logger.Info("replayed buffered mqtt messages", "count", len(pending))
	}

	if !reconnect {
		return
	}
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
	if err != nil {
		return
	}
	token := c.Publish(p.topics.System(), 1, false, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() == nil {
		p.logger.Info("mqtt reconnected")
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.logger.Warn("mqtt connection lost", "error", err)
}
