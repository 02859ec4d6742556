package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/hud-worker/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// OnCommand, if set, receives commands from TopicCommand. It runs on a
	// paho goroutine and may block.
	OnCommand func(Command)

	Logger *slog.Logger
}

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client  paho.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool // at least one successful connect
}

// NewRealPublisher creates a publisher for the given broker. A broker that
// does not answer within ConnectTimeout is not an error: the client is
// returned unconnected and keeps retrying.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "hud-worker"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	p := &RealPublisher{
		topic:   TopicEvents,
		timeout: o.PublishTimeout,
		logger:  o.Logger,
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetWill(TopicSystem, string(will), 1, false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c paho.Client) {
			p.onConnect(c, o.OnCommand)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		// paho keeps retrying; onConnect subscribes once the broker answers.
		p.logger.Warn("mqtt broker unreachable, retrying in background",
			"broker", o.Broker, "timeout", o.ConnectTimeout)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs on every (re)connect. Subscriptions do not survive a clean
// session, so the command topic is subscribed each time.
func (p *RealPublisher) onConnect(c paho.Client, onCommand func(Command)) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	if onCommand != nil {
		c.Subscribe(TopicCommand, 0, func(_ paho.Client, msg paho.Message) {
			cmd := ParseCommand(msg.Payload())
			p.logger.Info("mqtt command received", "topic", msg.Topic(), "command", cmd.String())
			onCommand(cmd)
		})
	}

	if !reconnect {
		p.logger.Info("mqtt connected")
		return
	}
	p.logger.Info("mqtt reconnected")
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	if err != nil {
		return
	}
	// Not waited on: this runs on the paho connection goroutine.
	c.Publish(TopicSystem, 1, false, payload)
}

// Publish sends a change event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.ChangeEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// Change events are dropped while offline, not queued behind the retry.
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	// QoS 0 (at-most-once), not retained
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	token := p.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
