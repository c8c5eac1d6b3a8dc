package watch

import "sync"

// Client is one connected status watcher.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals shutdown instead.
type Client struct {
	SessionID   string
	ValentineID string
	Send        chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(valentineID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 16
	}
	return &Client{
		SessionID:   sessionID,
		ValentineID: valentineID,
		Send:        make(chan Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
