package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 64
	authorizeWait  = 5 * time.Second
)

// Client frame types.
const (
	msgJoinTask  = "join_task"
	msgLeaveTask = "leave_task"
	msgJoined    = "joined"
	msgLeft      = "left"
	msgError     = "error"
)

var errAccessChanged = errors.New("task access changed, join again")

// Authorizer decides whether userID may subscribe to a task's topic.
type Authorizer func(ctx context.Context, userID, taskID string) error

// Client is one websocket connection. topics is guarded by the hub lock.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
	hub    *Hub
}

// ServeWS upgrades the request and serves the connection until it closes.
// userID must already be verified by the caller.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, authorize Authorizer) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		topics: make(map[string]struct{}),
		hub:    h,
	}
	h.register(c)

	go c.writePump()
	c.readPump(authorize)
	return nil
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(authorize Authorizer) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("realtime read failed", slog.String("client_id", c.id), slog.String("error", err.Error()))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", "invalid message format")
			continue
		}
		c.handle(msg, authorize)
	}
}

func (c *Client) handle(msg Message, authorize Authorizer) {
	switch msg.Type {
	case msgJoinTask:
		if msg.TaskID == "" {
			c.sendError("", "task_id is required")
			return
		}
		epoch := c.hub.beginJoin(msg.TaskID)
		var err error
		if authorize != nil {
			ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
			err = authorize(ctx, c.userID, msg.TaskID)
			cancel()
		}
		if !c.hub.finishJoin(c, msg.TaskID, epoch, err == nil) {
			if err == nil {
				err = errAccessChanged
			}
			c.sendError(msg.TaskID, err.Error())
			return
		}
		c.sendFrame(Message{Type: msgJoined, TaskID: msg.TaskID})
	case msgLeaveTask:
		c.hub.leave(c, msg.TaskID)
		c.sendFrame(Message{Type: msgLeft, TaskID: msg.TaskID})
	default:
		c.sendError(msg.TaskID, "unknown message type: "+msg.Type)
	}
}

func (c *Client) sendFrame(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.reply(c, data)
}

func (c *Client) sendError(taskID, text string) {
	c.sendFrame(Message{Type: msgError, TaskID: taskID, Error: text})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
