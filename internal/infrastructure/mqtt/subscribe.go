package mqtt

import (
	"fmt"
)

// Subscribe registers handler for messages matching topic. MQTT
// wildcards work as usual: monome/device/+/command matches the
// command topic of every device.
//
// The subscription is tracked so it can be restored after a broker
// reconnect. Handlers run on paho goroutines and must not block.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	ok := token.WaitTimeout(defaultPublishTimeout)
	err := token.Error()
	if !ok || err != nil {
		c.mu.Lock()
		delete(c.subscriptions, topic)
		c.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
		}
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}
