package realtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Skotchmaster/workhub/internal/tokens"
)

const (
	maxFrameBytes = 16 << 10

	defaultSendQueue    = 64
	defaultWriteTimeout = 5 * time.Second
	heartbeatInterval   = 25 * time.Second
	heartbeatTimeout    = 5 * time.Second
	maxPingFailures     = 3
)

type AccessParser interface {
	ParseAccess(token string) (*tokens.AccessClaims, error)
}

type GatewayConfig struct {
	// AllowedOrigins are host patterns for cross-origin upgrades.
	AllowedOrigins []string
	// Tokens, when set, requires an access token on the upgrade request
	// and only lets a connection join as the token's subject.
	Tokens AccessParser

	SendQueue    int
	WriteTimeout time.Duration
	Heartbeat    time.Duration
}

// Gateway upgrades HTTP requests to websocket connections and feeds
// join frames into the Hub.
type Gateway struct {
	log *slog.Logger
	hub *Hub
	cfg GatewayConfig
}

func NewGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig) *Gateway {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = heartbeatInterval
	}
	return &Gateway{log: log, hub: hub, cfg: cfg}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := ""
	if g.cfg.Tokens != nil {
		claims, err := g.cfg.Tokens.ParseAccess(accessTokenFrom(r))
		if err != nil {
			g.log.Info("ws_reject_auth", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		subject = claims.Subject
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.AllowedOrigins,
	})
	if err != nil {
		g.log.Warn("ws_accept_failed", "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(newSessionID(), g.cfg.SendQueue)
	g.hub.Register(client)
	g.serve(r.Context(), conn, client, subject)
}

func (g *Gateway) serve(parent context.Context, conn *websocket.Conn, client *Client, subject string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unregister(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}
	defer shutdown(websocket.StatusNormalClosure, "bye")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case msg := <-client.Send:
				wctx, wcancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
				err := conn.Write(wctx, websocket.MessageText, msg)
				wcancel()
				if err != nil {
					g.log.Info("ws_write_failed", "session_id", client.SessionID, "error", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	go func() {
		t := time.NewTicker(g.cfg.Heartbeat)
		defer t.Stop()
		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pctx, pcancel := context.WithTimeout(ctx, heartbeatTimeout)
				err := conn.Ping(pctx)
				pcancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				if failures >= maxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
			}
		}
	}()

	for {
		// Quiet clients are expected; dead peers are caught by the heartbeat.
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				g.log.Debug("ws_read_failed", "session_id", client.SessionID, "error", err)
			}
			break
		}
		if typ != websocket.MessageText {
			g.sendError(client, "bad_frame", "text frames only")
			continue
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			g.sendError(client, "bad_json", "invalid JSON")
			continue
		}

		switch f.Event {
		case EventJoin:
			g.onJoin(client, f, subject)
		default:
			g.sendError(client, "unsupported", "unsupported event: "+f.Event)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
}

func (g *Gateway) onJoin(client *Client, f Frame, subject string) {
	var userID string
	if err := json.Unmarshal(f.Data, &userID); err != nil {
		g.sendError(client, "bad_join", "join data must be a user id string")
		return
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		g.sendError(client, "bad_join", "empty user id")
		return
	}
	if subject != "" && subject != userID {
		g.log.Warn("ws_join_mismatch", "session_id", client.SessionID, "subject", subject, "user_id", userID)
		g.sendError(client, "forbidden", "cannot join as another user")
		return
	}
	g.hub.Join(client, userID)
}

func (g *Gateway) sendError(client *Client, code, msg string) {
	frame, err := encodeFrame(EventError, ErrorData{Code: code, Message: msg})
	if err != nil {
		return
	}
	client.trySend(frame)
}

func accessTokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}

func newSessionID() string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// OriginPatterns turns configured origins (URLs or bare hosts) into the host
// patterns websocket.Accept expects.
func OriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				out = append(out, u.Host)
			}
			continue
		}
		out = append(out, o)
	}
	return out
}
