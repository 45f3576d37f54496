package websocket

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster is the narrow surface SocketObserver needs; splitting it out
// of *Hub keeps the observer adapter testable without a running hub.
type Broadcaster interface {
	Broadcast(workflowID, executionID string, event *WSEvent)
}

type broadcastMsg struct {
	workflowID  string
	executionID string
	event       *WSEvent
}

// Hub owns the set of connected clients and fans broadcast events out to
// whichever ones subscribed to the matching execution or workflow, with
// execution-id-first, workflow-id-second matching.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byWorkflowID  map[string]map[*Client]bool
	byExecutionID map[string]map[*Client]bool

	log zerolog.Logger
	mu  sync.RWMutex
}

// NewHub builds an empty hub; call Run in its own goroutine to start it.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *broadcastMsg, 256),
		byWorkflowID:  make(map[string]map[*Client]bool),
		byExecutionID: make(map[string]map[*Client]bool),
		log:           log.With().Str("component", "websocket").Logger(),
	}
}

// Run drives the hub's event loop until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.log.Debug().Str("client_id", client.id).Int("total_clients", len(h.clients)).Msg("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	client.subs.mu.RLock()
	for wfID := range client.subs.workflows {
		if clients, ok := h.byWorkflowID[wfID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byWorkflowID, wfID)
			}
		}
	}
	for execID := range client.subs.executions {
		if clients, ok := h.byExecutionID[execID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byExecutionID, execID)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.log.Debug().Str("client_id", client.id).Int("total_clients", len(h.clients)).Msg("client unregistered")
}

// Broadcast queues event for delivery to matching clients. Implements
// Broadcaster.
func (h *Hub) Broadcast(workflowID, executionID string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{workflowID: workflowID, executionID: executionID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	if msg.executionID != "" {
		if clients, ok := h.byExecutionID[msg.executionID]; ok {
			for client := range clients {
				targets[client] = true
			}
		}
	}
	if msg.workflowID != "" {
		if clients, ok := h.byWorkflowID[msg.workflowID]; ok {
			for client := range clients {
				targets[client] = true
			}
		}
	}
	// Clients with no subscriptions yet watch everything, mirroring
	// Client.shouldReceive's default-open behavior.
	for client := range h.clients {
		client.subs.mu.RLock()
		open := len(client.subs.executions) == 0 && len(client.subs.workflows) == 0
		client.subs.mu.RUnlock()
		if open {
			targets[client] = true
		}
	}

	for client := range targets {
		select {
		case client.send <- msg.event:
		default:
			h.log.Warn().Str("client_id", client.id).Str("event_type", msg.event.Type).Msg("client buffer full, dropping message")
		}
	}
}

// Subscribe records that client now watches workflowID and/or executionID.
func (h *Hub) Subscribe(client *Client, workflowID, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	if workflowID != "" {
		client.subs.workflows[workflowID] = true
		if h.byWorkflowID[workflowID] == nil {
			h.byWorkflowID[workflowID] = make(map[*Client]bool)
		}
		h.byWorkflowID[workflowID][client] = true
	}
	if executionID != "" {
		client.subs.executions[executionID] = true
		if h.byExecutionID[executionID] == nil {
			h.byExecutionID[executionID] = make(map[*Client]bool)
		}
		h.byExecutionID[executionID][client] = true
	}
}

// Unsubscribe drops a client's watch on workflowID and/or executionID.
func (h *Hub) Unsubscribe(client *Client, workflowID, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	if workflowID != "" {
		delete(client.subs.workflows, workflowID)
		if clients, ok := h.byWorkflowID[workflowID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byWorkflowID, workflowID)
			}
		}
	}
	if executionID != "" {
		delete(client.subs.executions, executionID)
		if clients, ok := h.byExecutionID[executionID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byExecutionID, executionID)
			}
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
