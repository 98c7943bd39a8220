package mqtt

import (
	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/logic"
)

// FakePublisher is an in-memory Publisher. Every accepted event is kept
// alongside the payload and topic the real client would have used.
type FakePublisher struct {
	Topics   Topics
	Commands command.Submitter // target for Deliver

	Events   []logic.Event
	Payloads [][]byte
	Sent     []string // topic per entry in Events

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Topics: DefaultTopics()}
}

func (f *FakePublisher) Publish(event logic.Event) error {
	if err := f.PublishError; err != nil {
		return err
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	topic, _, _, _ := f.Topics.Route(event)
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	f.Sent = append(f.Sent, topic)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if err := f.PublishSystemError; err != nil {
		return err
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Weights lists the value of every WEIGHT event in publish order.
func (f *FakePublisher) Weights() []float64 {
	var out []float64
	for _, e := range f.Events {
		if e.Type == logic.EventWeight {
			out = append(out, e.Weight)
		}
	}
	return out
}

// Deliver feeds a message in as if it arrived from the broker. It reports
// whether the message parsed as a command and was queued.
func (f *FakePublisher) Deliver(topic string, payload []byte) bool {
	if f.Commands == nil {
		return false
	}
	c, ok := ParseCommand(f.Topics, topic, payload, command.DefaultWeight)
	return ok && f.Commands.Submit(c)
}

func (f *FakePublisher) Close() error      { f.Closed = true; return nil }
func (f *FakePublisher) IsConnected() bool { return f.Connected }

// Reset drops everything recorded and clears injected errors. Topics and
// Commands are kept.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{Topics: f.Topics, Commands: f.Commands}
}
