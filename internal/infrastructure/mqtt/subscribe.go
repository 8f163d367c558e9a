package mqtt

import (
	"fmt"
)

// Subscribe asks the broker to deliver messages matching topic.
//
// Matching messages are queued in the inbox and handed out by Drain;
// there is no per-topic handler. Subscriptions do not survive a new
// Connect (clean session), so callers re-subscribe after each handshake.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, qos, c.enqueue)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
