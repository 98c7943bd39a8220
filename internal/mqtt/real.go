package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // prefix; a random suffix keeps two scales apart on one broker
	Topics     Topics
	BufferSize int

	// Commands receives tare/calibrate requests. Nil disables the subscriptions.
	Commands      command.Submitter
	DefaultWeight float64
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher starts connecting to the broker in the background and
// returns immediately.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: no broker configured")
	}
	if opts.ClientID == "" {
		opts.ClientID = "scale-sensor"
	}
	p := &RealPublisher{
		opts:   opts,
		buffer: newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientID := opts.ClientID + "-" + uuid.NewString()[:8]
	o := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(opts.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(o)
	p.client.Connect()
	log.Printf("mqtt: connecting to %s as %s", opts.Broker, clientID)
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))

	if p.opts.Commands != nil {
		for _, topic := range []string{p.opts.Topics.Tare, p.opts.Topics.Calibrate} {
			if err := waitToken(c.Subscribe(topic, 1, p.onMessage), "subscribe "+topic); err != nil {
				log.Printf("mqtt: %v", err)
			}
		}
	}

	for _, m := range pending {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: publish reconnected: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) onMessage(_ paho.Client, m paho.Message) {
	c, ok := ParseCommand(p.opts.Topics, m.Topic(), m.Payload(), p.opts.DefaultWeight)
	if !ok {
		return
	}
	log.Printf("mqtt: received %s", c)
	p.opts.Commands.Submit(c)
}

// tokenTimeout bounds how long a publish or subscribe may wait on the broker.
const tokenTimeout = 5 * time.Second

// waitToken waits for t and reports a timeout as an error, so a subscription
// the broker never acknowledged is not mistaken for a live one.
func waitToken(t paho.Token, op string) error {
	if !t.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("%s: no response after %v", op, tokenTimeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	return waitToken(p.client.Publish(m.topic, m.qos, m.retained, m.payload), "publish")
}

// publish sends m now, or buffers it if the connection is down and buffer is set.
func (p *RealPublisher) publish(m bufferedMsg, buffer bool) error {
	p.mu.Lock()
	if !p.connected {
		if buffer {
			p.buffer.push(m)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

// Publish sends a scale event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	topic, qos, retained, buffer := p.opts.Topics.Route(event)
	return p.publish(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}, buffer)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle events must not be lost
	return p.publish(bufferedMsg{
		topic:    p.opts.Topics.System,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	}, true)
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
