package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"polyscan/protocol"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

func (doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakeBroker struct {
	published []message
	handlers  map[string]mqtt.MessageHandler
	closed    bool
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.published = append(b.published, message{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	if b.handlers == nil {
		b.handlers = make(map[string]mqtt.MessageHandler)
	}
	b.handlers[topic] = callback
	return doneToken{}
}

func (b *fakeBroker) Disconnect(quiesce uint) {
	b.closed = true
}

func TestPublish(t *testing.T) {
	b := &fakeBroker{}
	p := NewPublisher(b, "lab/scanner/")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := protocol.Status{State: protocol.StateMoving, MemRead: true}
	if err := p.Publish(NewReport(st, at)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(b.published) != 1 {
		t.Fatalf("Published %d messages, want 1", len(b.published))
	}
	msg := b.published[0]
	if msg.topic != "lab/scanner/status" {
		t.Errorf("Topic %q", msg.topic)
	}
	var r Report
	if err := json.Unmarshal(msg.payload, &r); err != nil {
		t.Fatalf("Payload %s: %v", msg.payload, err)
	}
	if r.State != "MOVING" || !r.MemRead || r.Full || r.Raw != st.Byte() || !r.Time.Equal(at) {
		t.Errorf("Report %+v", r)
	}

	p.Close()
	if !b.closed {
		t.Error("Close did not disconnect")
	}
}

func TestCommands(t *testing.T) {
	b := &fakeBroker{}
	p := NewPublisher(b, "")

	var got []string
	if err := p.Commands(func(c Command) { got = append(got, c.Name) }); err != nil {
		t.Fatalf("Commands failed: %v", err)
	}
	handler := b.handlers["polyscan/cmd"]
	if handler == nil {
		t.Fatal("No subscription on polyscan/cmd")
	}

	for _, payload := range []string{`{"cmd":"START"}`, `garbage`, `{"cmd":"reboot"}`, `{"cmd":"stop"}`} {
		handler(nil, message{topic: "polyscan/cmd", payload: []byte(payload)})
	}
	if len(got) != 2 || got[0] != "start" || got[1] != "stop" {
		t.Errorf("Commands %v, want [start stop]", got)
	}
}
