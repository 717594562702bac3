package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/tokens"
)

func startGateway(t *testing.T, cfg GatewayConfig) (*Hub, string) {
	t.Helper()
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(NewGateway(logging.Discard(), hub, cfg))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	msg, err := json.Marshal(Frame{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, msg))
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) Frame {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Event == event {
			return f
		}
	}
}

func readOnline(t *testing.T, ctx context.Context, conn *websocket.Conn, want []string) {
	t.Helper()
	for {
		f := readUntil(t, ctx, conn, EventOnlineUsers)
		var ids []string
		require.NoError(t, json.Unmarshal(f.Data, &ids))
		if assert.ObjectsAreEqual(want, ids) {
			return
		}
	}
}

func TestGateway_JoinBroadcastsOnlineUsers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub, url := startGateway(t, GatewayConfig{})

	a := dial(t, ctx, url, nil)
	send(t, ctx, a, EventJoin, "u1")
	readOnline(t, ctx, a, []string{"u1"})

	b := dial(t, ctx, url, nil)
	send(t, ctx, b, EventJoin, "u2")
	readOnline(t, ctx, a, []string{"u1", "u2"})
	readOnline(t, ctx, b, []string{"u1", "u2"})

	require.NoError(t, b.Close(websocket.StatusNormalClosure, ""))
	readOnline(t, ctx, a, []string{"u1"})
	assert.Equal(t, []string{"u1"}, hub.OnlineUsers())
}

func TestGateway_QuietClientStaysOnline(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub, url := startGateway(t, GatewayConfig{Heartbeat: 50 * time.Millisecond})
	c := dial(t, ctx, url, nil)
	send(t, ctx, c, EventJoin, "u1")
	readOnline(t, ctx, c, []string{"u1"})

	// Keep reading so pings are answered, but never send another frame.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	time.Sleep(time.Second)
	assert.Equal(t, []string{"u1"}, hub.OnlineUsers())
	select {
	case err := <-readErr:
		t.Fatalf("connection dropped: %v", err)
	default:
	}
}

func TestGateway_BadFrames(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, url := startGateway(t, GatewayConfig{})
	c := dial(t, ctx, url, nil)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	f := readUntil(t, ctx, c, EventError)
	var e ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, "bad_json", e.Code)

	send(t, ctx, c, EventJoin, 42)
	f = readUntil(t, ctx, c, EventError)
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, "bad_join", e.Code)
}

func TestGateway_TokenBoundJoin(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	issuer, err := tokens.NewIssuer([]byte("a"), []byte("r"))
	require.NoError(t, err)
	pair, err := issuer.Issue("u1")
	require.NoError(t, err)

	hub, url := startGateway(t, GatewayConfig{Tokens: issuer})

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+pair.AccessToken)
	c := dial(t, ctx, url, h)

	send(t, ctx, c, EventJoin, "someone-else")
	f := readUntil(t, ctx, c, EventError)
	var e ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, "forbidden", e.Code)
	assert.Empty(t, hub.OnlineUsers())

	send(t, ctx, c, EventJoin, "u1")
	readOnline(t, ctx, c, []string{"u1"})
}

func TestOriginPatterns(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		[]string{"localhost:5173", "app.example.com"},
		OriginPatterns([]string{"http://localhost:5173", " app.example.com ", ""}),
	)
}
