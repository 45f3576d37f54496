package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Subscriptions tracks which executions and workflows a client is watching.
type Subscriptions struct {
	mu         sync.RWMutex
	executions map[string]bool
	workflows  map[string]bool
}

func newSubscriptions() *Subscriptions {
	return &Subscriptions{
		executions: make(map[string]bool),
		workflows:  make(map[string]bool),
	}
}

// Client is one connected WebSocket subscriber.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan *WSEvent
	subs   *Subscriptions
}

// NewClient wraps an upgraded connection.
func NewClient(id, userID string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:     id,
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan *WSEvent, 256),
		subs:   newSubscriptions(),
	}
}

// shouldReceive reports whether an event scoped to (workflowID, executionID)
// matches this client's subscriptions. Execution subscriptions take
// priority over workflow-level ones.
func (c *Client) shouldReceive(workflowID, executionID string) bool {
	c.subs.mu.RLock()
	defer c.subs.mu.RUnlock()

	if executionID != "" && c.subs.executions[executionID] {
		return true
	}
	if workflowID != "" && c.subs.workflows[workflowID] {
		return true
	}
	return len(c.subs.executions) == 0 && len(c.subs.workflows) == 0
}

// readPump reads commands from the client until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd WSCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd WSCommand) {
	switch cmd.Action {
	case CmdSubscribe:
		c.hub.Subscribe(c, cmd.WorkflowID, cmd.ExecutionID)
		c.sendResponse(NewSuccessResponse(CmdSubscribe, "subscribed"))
	case CmdUnsubscribe:
		c.hub.Unsubscribe(c, cmd.WorkflowID, cmd.ExecutionID)
		c.sendResponse(NewSuccessResponse(CmdUnsubscribe, "unsubscribed"))
	default:
		c.sendResponse(NewErrorResponse(cmd.Action, "unknown action"))
	}
}

func (c *Client) sendResponse(resp *WSResponse) {
	c.writeJSON(resp)
}

// writePump delivers broadcast events and keepalive pings to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.TextMessage, b)
}
