package websocket

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aegis-run/orchestrator/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(id string) *Client {
	return &Client{id: id, subs: newSubscriptions(), send: make(chan *WSEvent, 16)}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())
	assert.NotNil(t, hub.clients)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient("c1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("c1")

	hub.Subscribe(client, "wf-1", "exec-1")

	hub.mu.RLock()
	_, wfOk := hub.byWorkflowID["wf-1"][client]
	_, execOk := hub.byExecutionID["exec-1"][client]
	hub.mu.RUnlock()
	assert.True(t, wfOk)
	assert.True(t, execOk)

	hub.Unsubscribe(client, "wf-1", "exec-1")

	hub.mu.RLock()
	_, wfOkAfter := hub.byWorkflowID["wf-1"]
	_, execOkAfter := hub.byExecutionID["exec-1"]
	hub.mu.RUnlock()
	assert.False(t, wfOkAfter)
	assert.False(t, execOkAfter)
}

func TestHub_BroadcastReachesExecutionAndWorkflowSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	execSubscriber := newTestClient("c1")
	wfSubscriber := newTestClient("c2")

	hub.register <- execSubscriber
	hub.register <- wfSubscriber
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(execSubscriber, "", "exec-1")
	hub.Subscribe(wfSubscriber, "wf-1", "")

	execID := domain.ID{}
	event := NewWSEvent(EventWorkflowStarted, execID)
	event.ExecutionID = "exec-1"
	hub.Broadcast("wf-1", "exec-1", event)

	select {
	case got := <-execSubscriber.send:
		assert.Equal(t, "exec-1", got.ExecutionID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("execution subscriber did not receive event")
	}
	select {
	case got := <-wfSubscriber.send:
		assert.Equal(t, "exec-1", got.ExecutionID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("workflow subscriber did not receive event")
	}
}

func TestHub_UnsubscribedClientWithNoFilterReceivesEverything(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient("c1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	event := NewWSEvent(EventWorkflowStarted, domain.ID{})
	event.ExecutionID = "exec-unrelated"
	hub.Broadcast("wf-unrelated", "exec-unrelated", event)

	select {
	case got := <-client.send:
		assert.Equal(t, "exec-unrelated", got.ExecutionID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("unsubscribed client should default to receiving everything")
	}
}

func TestHub_BroadcasterInterface(t *testing.T) {
	var _ Broadcaster = NewHub(testLogger())
}
