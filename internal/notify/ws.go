package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// registerRequest is the only message clients send.  Token is the bearer
// token of userId when it was not given on the upgrade request.
type registerRequest struct {
	Type   string `json:"type"`
	UserID uint64 `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// Server accepts WebSocket connections and binds them to users in Hub.
//
// When Authenticate is set, a register message is accepted only if the
// bearer token resolves to the requested userId.  The token comes from the
// message, the upgrade request's Authorization header or its token query
// parameter, in that order.
type Server struct {
	Hub          *Hub
	Logger       echo.Logger
	Authenticate func(token string) (uint64, error)
	upgrader     websocket.Upgrader
	srv          *http.Server
}

// NewServer returns a Server for hub.  Origins are not checked because the
// mobile client sends none.
func NewServer(hub *Hub, logger echo.Logger) *Server {
	return &Server{
		Hub:    hub,
		Logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe serves WebSocket upgrades on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warnf("ws: upgrade failed: %v", err)
		return
	}
	c := &wsConn{ws: ws, out: make(chan []byte, sendBuffer), done: make(chan struct{})}
	go c.writeLoop()
	s.readLoop(c, upgradeToken(r))
}

func upgradeToken(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get(echo.HeaderAuthorization), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return r.URL.Query().Get("token")
}

// allowed reports whether the connection may register as req.UserID.
func (s *Server) allowed(req registerRequest, upgrade string) bool {
	if s.Authenticate == nil {
		return true
	}
	tok := req.Token
	if tok == "" {
		tok = upgrade
	}
	if tok == "" {
		return false
	}
	id, err := s.Authenticate(tok)
	return err == nil && id == req.UserID
}

func (s *Server) readLoop(c *wsConn, upgrade string) {
	defer func() {
		s.Hub.Unregister(c)
		c.close()
	}()
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Debugf("ws: read: %v", err)
			}
			return
		}
		var req registerRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "register" || req.UserID == 0 {
			c.sendJSON(Message{Type: "error", Data: "expected {\"type\":\"register\",\"userId\":N}"})
			continue
		}
		if !s.allowed(req, upgrade) {
			s.Logger.Warnf("ws: refused register as user %d", req.UserID)
			c.sendJSON(Message{Type: "error", Data: "not allowed to register as this user"})
			continue
		}
		s.Hub.Register(req.UserID, c)
		s.Logger.Debugf("ws: user %d registered", req.UserID)
		c.sendJSON(struct {
			Type   string `json:"type"`
			UserID uint64 `json:"userId"`
		}{"registered", req.UserID})
	}
}

// wsConn adapts a websocket connection to Conn.  A single goroutine writes;
// Send only enqueues.
type wsConn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- payload:
		return true
	default:
		// slow consumer, drop
		return false
	}
}

func (c *wsConn) sendJSON(v any) {
	if b, err := json.Marshal(v); err == nil {
		c.Send(b)
	}
}

func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case b := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
