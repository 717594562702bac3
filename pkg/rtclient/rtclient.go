// Package rtclient connects to the realtime gateway and announces the
// signed-in user.
package rtclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

const (
	eventJoin        = "join"
	eventOnlineUsers = "getOnlineUsers"
	eventError       = "error"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Option func(*options)

type options struct {
	token  string
	client *http.Client
	logger *slog.Logger
}

// WithAccessToken sends the token as a Bearer header on the upgrade.
func WithAccessToken(token string) Option { return func(o *options) { o.token = token } }

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

type Conn struct {
	ws     *websocket.Conn
	log    *slog.Logger
	cancel context.CancelFunc

	online chan []string
	done   chan struct{}

	mu     sync.Mutex
	latest []string
	err    error
}

// Dial opens the connection and sends a single join frame for userID.
func Dial(ctx context.Context, url, userID string, opts ...Option) (*Conn, error) {
	if userID == "" {
		return nil, errors.New("rtclient: empty user id")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	dialOpts := &websocket.DialOptions{HTTPClient: o.client}
	if o.token != "" {
		dialOpts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + o.token}}
	}

	ws, _, err := websocket.Dial(ctx, url, dialOpts)
	if err != nil {
		return nil, fmt.Errorf("rtclient: dial: %w", err)
	}

	join, err := json.Marshal(userID)
	if err != nil {
		ws.CloseNow()
		return nil, err
	}
	msg, _ := json.Marshal(frame{Event: eventJoin, Data: join})
	if err := ws.Write(ctx, websocket.MessageText, msg); err != nil {
		ws.CloseNow()
		return nil, fmt.Errorf("rtclient: join: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:     ws,
		log:    o.logger.With("component", "rtclient", "user_id", userID),
		cancel: cancel,
		online: make(chan []string, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop(readCtx)
	return c, nil
}

// OnlineUsers delivers presence snapshots. Only the newest undelivered
// snapshot is kept.
func (c *Conn) OnlineUsers() <-chan []string { return c.online }

func (c *Conn) Latest() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.latest...)
}

// Done is closed when the read loop stops.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	<-c.done
	return err
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.cancel()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				c.log.Info("rt_disconnected", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("rt_bad_frame", "error", err)
			continue
		}
		switch f.Event {
		case eventOnlineUsers:
			var ids []string
			if err := json.Unmarshal(f.Data, &ids); err != nil {
				c.log.Warn("rt_bad_frame", "event", f.Event, "error", err)
				continue
			}
			c.publish(ids)
		case eventError:
			c.log.Warn("rt_server_error", "data", string(f.Data))
		}
	}
}

func (c *Conn) publish(ids []string) {
	c.mu.Lock()
	c.latest = ids
	c.mu.Unlock()

	select {
	case c.online <- ids:
		return
	default:
	}
	select {
	case <-c.online:
	default:
	}
	c.online <- ids
}
