package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/workhub/internal/logging"
)

func lastOnline(t *testing.T, c *Client) []string {
	t.Helper()
	var last []string
	for {
		select {
		case msg := <-c.Send:
			var f Frame
			require.NoError(t, json.Unmarshal(msg, &f))
			if f.Event != EventOnlineUsers {
				continue
			}
			last = nil
			require.NoError(t, json.Unmarshal(f.Data, &last))
		default:
			return last
		}
	}
}

func hasEvent(t *testing.T, c *Client, event string) bool {
	t.Helper()
	found := false
	for {
		select {
		case msg := <-c.Send:
			var f Frame
			require.NoError(t, json.Unmarshal(msg, &f))
			if f.Event == event {
				found = true
			}
		default:
			return found
		}
	}
}

func TestHub_JoinAndDisconnect(t *testing.T) {
	t.Parallel()
	h := NewHub(logging.Discard())

	a := NewClient("a", 8)
	b := NewClient("b", 8)
	h.Register(a)
	h.Register(b)

	h.Join(a, "u1")
	h.Join(b, "u2")

	assert.Equal(t, []string{"u1", "u2"}, h.OnlineUsers())
	assert.Equal(t, []string{"u1", "u2"}, lastOnline(t, a))
	assert.Equal(t, []string{"u1", "u2"}, lastOnline(t, b))

	h.Unregister(b)
	assert.Equal(t, []string{"u1"}, h.OnlineUsers())
	assert.Equal(t, []string{"u1"}, lastOnline(t, a))
}

func TestHub_LatestConnectionWins(t *testing.T) {
	t.Parallel()
	h := NewHub(logging.Discard())

	first := NewClient("first", 8)
	second := NewClient("second", 8)
	h.Register(first)
	h.Register(second)

	h.Join(first, "u1")
	h.Join(second, "u1")

	assert.True(t, h.SendTo("u1", "ping", "x"))
	assert.False(t, hasEvent(t, first, "ping"))
	assert.True(t, hasEvent(t, second, "ping"))

	h.Unregister(first)
	assert.Equal(t, []string{"u1"}, h.OnlineUsers(), "closing a superseded connection keeps the user online")

	h.Unregister(second)
	assert.Empty(t, h.OnlineUsers())
	assert.False(t, h.SendTo("u1", "ping", "x"))
}

func TestHub_RejoinAsOtherUserReleasesOld(t *testing.T) {
	t.Parallel()
	h := NewHub(logging.Discard())
	c := NewClient("c", 8)
	h.Register(c)

	h.Join(c, "u1")
	h.Join(c, "u2")
	assert.Equal(t, []string{"u2"}, h.OnlineUsers())
}

func TestHub_FullQueueDoesNotBlock(t *testing.T) {
	t.Parallel()
	h := NewHub(logging.Discard())
	slow := NewClient("slow", 1)
	h.Register(slow)

	for i := 0; i < 10; i++ {
		h.Join(slow, "u1")
	}
	assert.Len(t, slow.Send, 1)

	h.Unregister(slow)
	h.Unregister(slow)
}
