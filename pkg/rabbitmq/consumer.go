package rabbitmq

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one message. A nil error acknowledges it; an error leaves it
// unacknowledged so the broker redelivers it on the persistent session.
type Handler func(topic string, message mqtt.Message) error

// Consumer subscribes one topic filter and dispatches messages to a handler.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	log     *zap.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, log: logger}
}

// ConsumeMessage subscribes and blocks until ctx is cancelled, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, c.onMessage)
	if err := waitToken(ctx, token); err != nil {
		return err
	}
	c.log.Info("mqtt: subscribed", zap.String("topic", c.topic), zap.Uint8("qos", c.qos))

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).WaitTimeout(defaultUnsubscribeWait)
	return nil
}

// onMessage acks explicitly; the connection is opened with auto-ack disabled.
func (c *Consumer) onMessage(_ mqtt.Client, m mqtt.Message) {
	if c.handler == nil {
		c.log.Warn("mqtt: no handler, message dropped", zap.String("topic", c.topic))
		m.Ack()
		return
	}
	if err := c.handler(m.Topic(), m); err != nil {
		c.log.Error("mqtt: handler failed, message left for redelivery",
			zap.String("topic", m.Topic()), zap.Uint16("messageId", m.MessageID()), zap.Error(err))
		return
	}
	m.Ack()
}
