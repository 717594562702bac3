package realtime

import "sync"

// Client is one websocket connection. Send is never closed so that
// broadcasters cannot panic; done signals shutdown instead.
type Client struct {
	SessionID string
	Send      chan []byte

	mu     sync.RWMutex
	userID string

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// trySend drops msg when the queue is full.
func (c *Client) trySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}
