package mqtt

import (
	"context"
	"fmt"
)

// Subscribe registers a handler for a topic filter.
//
// The registration is kept for the life of the client and re-applied on
// every (re)connection. When the client is already Connected the filter is
// also subscribed immediately; if the broker refuses it the registration is
// dropped and the error returned.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	sub := subscription{topic: topic, qos: qos, handler: handler}

	c.mu.Lock()
	c.subscriptions[topic] = sub
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}

	if err := c.subscribeNow(ctx, sub); err != nil {
		c.mu.Lock()
		delete(c.subscriptions, topic)
		c.mu.Unlock()
		return err
	}
	return nil
}

// SubscriptionCount returns the number of registered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.subscriptions[topic]
	return exists
}
