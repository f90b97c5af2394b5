package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackMessage struct {
	mqtt.Message
	topic   string
	payload []byte
	mu      sync.Mutex
	acks    int
}

func (m *ackMessage) Topic() string     { return m.topic }
func (m *ackMessage) Payload() []byte   { return m.payload }
func (m *ackMessage) MessageID() uint16 { return 7 }
func (m *ackMessage) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks++
}

func (m *ackMessage) ackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks
}

// subscribeClient records the subscription and hands its callback to the test.
type subscribeClient struct {
	mqtt.Client
	mu       sync.Mutex
	filter   string
	qos      byte
	callback mqtt.MessageHandler
	unsubbed bool
}

func (c *subscribeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter, c.qos, c.callback = topic, qos, cb
	return newDoneToken(nil)
}

func (c *subscribeClient) Unsubscribe(...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubbed = true
	return newDoneToken(nil)
}

func (c *subscribeClient) handler() mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback
}

func TestConsumerAcksOnlyHandledMessages(t *testing.T) {
	client := &subscribeClient{}
	fail := errors.New("store unavailable")
	c := NewConsumer(client, "detection/signal/#", 1, func(_ string, m mqtt.Message) error {
		if string(m.Payload()) == "bad" {
			return fail
		}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ConsumeMessage(ctx) }()

	require.Eventually(t, func() bool { return client.handler() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "detection/signal/#", client.filter)
	assert.Equal(t, byte(1), client.qos)

	ok := &ackMessage{topic: "detection/signal/s1", payload: []byte("good")}
	failed := &ackMessage{topic: "detection/signal/s1", payload: []byte("bad")}
	client.handler()(client, ok)
	client.handler()(client, failed)

	assert.Equal(t, 1, ok.ackCount())
	assert.Zero(t, failed.ackCount(), "a failed message stays unacknowledged for redelivery")

	cancel()
	require.NoError(t, <-done)
	assert.True(t, client.unsubbed)
}

func TestConsumerWithoutHandlerAcks(t *testing.T) {
	c := NewConsumer(&subscribeClient{}, "t", 1, nil, nil)
	m := &ackMessage{topic: "t"}
	c.onMessage(nil, m)
	assert.Equal(t, 1, m.ackCount())
}
