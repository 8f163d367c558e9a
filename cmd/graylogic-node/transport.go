package main

import (
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/node"
)

// mqttClient is the subset of *mqtt.Client the node transport needs.
type mqttClient interface {
	Connect(opts mqtt.ConnectOptions) error
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte) error
	Drain(max int, deliver func(topic string, payload []byte) bool) int
	QoS() byte
	Disconnect()
}

// mqttTransport adapts the infrastructure MQTT client to node.Transport.
// Every publish and subscribe uses the configured QoS.
type mqttTransport struct {
	client mqttClient
}

var _ node.Transport = (*mqttTransport)(nil)

func newMQTTTransport(client mqttClient) *mqttTransport {
	return &mqttTransport{client: client}
}

func (t *mqttTransport) Connect(opts node.ConnectOptions) error {
	connect := mqtt.ConnectOptions{
		ClientID: opts.ClientID,
		Username: opts.Username,
		Password: opts.Password,
	}
	if opts.Will.Topic != "" {
		connect.Will = &mqtt.Will{
			Topic:    opts.Will.Topic,
			Payload:  opts.Will.Payload,
			QoS:      t.client.QoS(),
			Retained: opts.Will.Retained,
		}
	}
	return t.client.Connect(connect)
}

func (t *mqttTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t *mqttTransport) Publish(topic string, payload []byte, retained bool) error {
	return t.client.Publish(topic, payload, t.client.QoS(), retained)
}

func (t *mqttTransport) Subscribe(topic string) error {
	return t.client.Subscribe(topic, t.client.QoS())
}

func (t *mqttTransport) Drain(max int, deliver func(topic string, payload []byte) bool) int {
	return t.client.Drain(max, deliver)
}

func (t *mqttTransport) Disconnect() {
	t.client.Disconnect()
}
