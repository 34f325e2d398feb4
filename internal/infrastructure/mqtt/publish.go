package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message and, for QoS above 0, waits for the broker's
// acknowledgement.
//
// Publishing is only permitted while the client is Connected; in any other
// state ErrNotConnected is returned and nothing is queued.
//
// Example:
//
//	topic, _ := mqtt.Topics{}.SMSOutgoing(imei)
//	err := client.Publish(ctx, topic, body, 1, false)
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotConnected, state)
	}
	client := c.client
	c.mu.Unlock()

	if err := waitToken(ctx, client.Publish(topic, qos, retained, payload), defaultAckTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
