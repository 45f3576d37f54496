package humangate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

type memStore struct {
	byID map[domain.ID]*domain.HumanInputRequest
}

func newMemStore() *memStore { return &memStore{byID: make(map[domain.ID]*domain.HumanInputRequest)} }

func (m *memStore) Create(ctx context.Context, req *domain.HumanInputRequest) error {
	m.byID[req.RequestID] = req
	return nil
}

func (m *memStore) Get(ctx context.Context, requestID domain.ID) (*domain.HumanInputRequest, error) {
	req, ok := m.byID[requestID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "request not found", nil)
	}
	return req, nil
}

func (m *memStore) Update(ctx context.Context, req *domain.HumanInputRequest) error {
	m.byID[req.RequestID] = req
	return nil
}

func (m *memStore) ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]*domain.HumanInputRequest, error) {
	var out []*domain.HumanInputRequest
	for _, req := range m.byID {
		if req.Status == domain.HumanRequestPending && req.TimeoutAt.Before(cutoff) {
			out = append(out, req)
		}
	}
	return out, nil
}

type recordingSignaler struct {
	delivered map[string]any
}

func (r *recordingSignaler) DeliverSignal(ctx context.Context, executionID domain.ID, name string, value any) error {
	if r.delivered == nil {
		r.delivered = make(map[string]any)
	}
	r.delivered[name] = value
	return nil
}

func TestGate_RespondOnce(t *testing.T) {
	store := newMemStore()
	signaler := &recordingSignaler{}
	gate := New(store, signaler, nil)

	req, err := gate.Request(context.Background(), domain.NewID(), "approval", "approve?", time.Hour)
	require.NoError(t, err)

	require.NoError(t, gate.Respond(context.Background(), req.RequestID, domain.HumanResponse{Decision: "approve"}))
	assert.Contains(t, signaler.delivered, gate.SignalName(req.RequestID))
}

func TestGate_RespondTwice_Conflicts(t *testing.T) {
	store := newMemStore()
	gate := New(store, &recordingSignaler{}, nil)

	req, _ := gate.Request(context.Background(), domain.NewID(), "approval", "approve?", time.Hour)
	require.NoError(t, gate.Respond(context.Background(), req.RequestID, domain.HumanResponse{Decision: "approve"}))

	err := gate.Respond(context.Background(), req.RequestID, domain.HumanResponse{Decision: "reject"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidState, domain.CodeOf(err))

	stored, _ := store.Get(context.Background(), req.RequestID)
	assert.Equal(t, "approve", stored.Response.Decision)
}

func TestGate_ExpireOverdue_DefaultsToTimeoutError(t *testing.T) {
	store := newMemStore()
	gate := New(store, &recordingSignaler{}, nil)

	req, _ := gate.Request(context.Background(), domain.NewID(), "approval", "approve?", -time.Minute)

	require.NoError(t, gate.ExpireOverdue(context.Background(), time.Now(), nil))

	stored, _ := store.Get(context.Background(), req.RequestID)
	assert.Equal(t, domain.HumanRequestTimedOut, stored.Status)
	assert.True(t, stored.Response.TimedOut)
}
