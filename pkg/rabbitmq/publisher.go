package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
)

// DefaultSprayTopicTemplate is where sprayer commands go; {device} is replaced by the device id.
const DefaultSprayTopicTemplate = "actuator/spray/{device}"

// Publisher sends JSON messages to a templated topic.
type Publisher struct {
	client   mqtt.Client
	template string
	qos      byte
}

func NewPublisher(client mqtt.Client, topicTemplate string, qos byte) *Publisher {
	if strings.TrimSpace(topicTemplate) == "" {
		topicTemplate = DefaultSprayTopicTemplate
	}
	return &Publisher{client: client, template: topicTemplate, qos: qos}
}

// Topic renders the template for one device.
func (p *Publisher) Topic(device string) string {
	return strings.ReplaceAll(p.template, "{device}", device)
}

// PublishJSON marshals v and publishes it, waiting for the broker ack at QoS > 0.
func (p *Publisher) PublishJSON(ctx context.Context, device string, v any) error {
	if p.client == nil {
		return errors.New("mqtt client not configured")
	}
	if strings.TrimSpace(device) == "" || strings.ContainsAny(device, "/+#") {
		return fmt.Errorf("invalid device id %q", device)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	topic := p.Topic(device)
	if err := waitToken(ctx, p.client.Publish(topic, p.qos, false, body)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// SprayPublisher delivers sprayer commands to actuator/spray/{device}.
type SprayPublisher struct{ *Publisher }

func NewSprayPublisher(client mqtt.Client, topicTemplate string) SprayPublisher {
	return SprayPublisher{NewPublisher(client, topicTemplate, 1)}
}

func (p SprayPublisher) Publish(ctx context.Context, deviceID string, cmd *messages.SprayerCommand) error {
	if cmd == nil {
		return errors.New("nil sprayer command")
	}
	return p.PublishJSON(ctx, deviceID, cmd)
}
