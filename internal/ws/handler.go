package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"companion-chat/backend/internal/service"
	apperrors "companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
	sendBuffer     = 16
)

// Frame types
const (
	TypeMessage    = "message"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeTurnResult = "turn_result"
	TypeError      = "error"
)

// Inbound is a frame sent by the client
type Inbound struct {
	Type        string `json:"type"`
	UserID      uint   `json:"user_id,omitempty"`
	CharacterID uint   `json:"character_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// FrameError is the error body of an error frame
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outbound is a frame sent to the client
type Outbound struct {
	Type   string              `json:"type"`
	Result *service.TurnResult `json:"result,omitempty"`
	Error  *FrameError         `json:"error,omitempty"`
}

// TurnRunner runs one conversation turn
type TurnRunner interface {
	SendMessage(ctx context.Context, userID, characterID uint, text string) (*service.TurnResult, error)
}

// Hub tracks open sockets and runs their turns
type Hub struct {
	turns          TurnRunner
	log            *logger.Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader
	pongWait       time.Duration
	pingPeriod     time.Duration

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub(turns TurnRunner, log *logger.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		turns:          turns,
		log:            log,
		allowedOrigins: allowedOrigins,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		clients:        make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.allowedOrigins, origin)
}

// ActiveConnections is the number of open sockets
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		c.conn.Close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	c.log.Info("Client registered")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.log.Info("Client unregistered")
	}
}

// Client is one open socket. Turns from one socket run in order.
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Outbound
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// ServeWs upgrades the request and serves turns until the peer goes away
func (h *Hub) ServeWs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError(err, "Error upgrading connection")
		return
	}

	id := uuid.NewString()
	// The socket outlives the upgrade request, so its context is detached
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	client := &Client{
		ID:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan Outbound, sendBuffer),
		log:    logger.FromContext(c.Request.Context()).With("client_id", id),
		ctx:    ctx,
		cancel: cancel,
	}

	h.register(client)
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.unregister(c)
		close(c.send)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		return c.extendReadDeadline()
	})

	for {
		var frame Inbound
		if err := c.conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.reply(errorFrame(apperrors.Validation("malformed frame")))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.LogError(err, "Socket read failed")
			}
			return
		}

		// Pongs are only seen inside ReadJSON, so a long turn must not eat
		// into the window for the next frame
		c.handle(frame)
		c.extendReadDeadline()
	}
}

func (c *Client) extendReadDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
}

func (c *Client) handle(frame Inbound) {
	switch frame.Type {
	case TypePing:
		c.reply(Outbound{Type: TypePong})
	case TypeMessage:
		ctx := logger.IntoContext(c.ctx, c.log.WithTurn(frame.UserID, frame.CharacterID))
		result, err := c.hub.turns.SendMessage(ctx, frame.UserID, frame.CharacterID, frame.Message)
		if err != nil {
			c.reply(errorFrame(err))
			return
		}
		c.reply(Outbound{Type: TypeTurnResult, Result: result})
	default:
		c.reply(errorFrame(apperrors.Validation("unknown frame type: " + frame.Type)))
	}
}

// reply queues a frame, dropping it if the peer has stopped reading
func (c *Client) reply(out Outbound) {
	select {
	case c.send <- out:
	case <-c.ctx.Done():
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(out); err != nil {
				c.log.LogError(err, "Socket write failed")
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func errorFrame(err error) Outbound {
	appErr := apperrors.FromError(err)
	return Outbound{
		Type:  TypeError,
		Error: &FrameError{Code: appErr.Code, Message: appErr.Message},
	}
}
