// Package telemetry publishes core status over MQTT and accepts remote
// START/STOP requests
package telemetry

import (
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"polyscan/protocol"
)

// DefaultTopic is the status topic prefix
const DefaultTopic = "polyscan"

// Report is the JSON status message
type Report struct {
	Time          time.Time `json:"time"`
	State         string    `json:"state"`
	Full          bool      `json:"full"`
	DispatchError bool      `json:"dispatch_error"`
	MemRead       bool      `json:"memread"`
	Raw           byte      `json:"raw"`
	Written       uint64    `json:"written,omitempty"`
	Rejected      uint64    `json:"rejected,omitempty"`
}

// NewReport builds a report for st
func NewReport(st protocol.Status, at time.Time) Report {
	return Report{
		Time:          at.UTC(),
		State:         st.State.String(),
		Full:          st.Full,
		DispatchError: st.DispatchError,
		MemRead:       st.MemRead,
		Raw:           st.Byte(),
	}
}

// broker is the part of mqtt.Client the publisher uses
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends reports to <topic>/status and listens on <topic>/cmd
type Publisher struct {
	client broker
	topic  string
	qos    byte
}

// Connect opens an MQTT connection to a broker such as tcp://host:1883
func Connect(url, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(url).SetClientID(clientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "telemetry: connect %s", url)
	}
	return NewPublisher(c, topic), nil
}

// NewPublisher wraps a connected client
func NewPublisher(c broker, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: c, topic: strings.TrimSuffix(topic, "/"), qos: 1}
}

// StatusTopic returns the topic reports go to
func (p *Publisher) StatusTopic() string {
	return p.topic + "/status"
}

// CommandTopic returns the topic remote commands arrive on
func (p *Publisher) CommandTopic() string {
	return p.topic + "/cmd"
}

// Publish sends one report
func (p *Publisher) Publish(r Report) error {
	msg, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "telemetry: encode report")
	}
	token := p.client.Publish(p.StatusTopic(), p.qos, false, msg)
	if token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "telemetry: publish")
	}
	return nil
}

// Command is a remote request
type Command struct {
	Name string `json:"cmd"` // "start", "stop" or "status"
}

// Commands subscribes to the command topic and calls fn for every well
// formed request. Malformed messages are dropped.
func (p *Publisher) Commands(fn func(Command)) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var cmd Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			return
		}
		cmd.Name = strings.ToLower(cmd.Name)
		switch cmd.Name {
		case "start", "stop", "status":
			fn(cmd)
		}
	}
	token := p.client.Subscribe(p.CommandTopic(), p.qos, handler)
	if token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "telemetry: subscribe")
	}
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
