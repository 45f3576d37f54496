package stimulussource

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

type fakeRouter struct {
	exec *domain.WorkflowExecution
	err  error
}

func (f *fakeRouter) Route(ctx context.Context, stim *domain.Stimulus) (*domain.WorkflowExecution, error) {
	if f.err != nil {
		return nil, f.err
	}
	stim.Classification = &domain.Classification{Intent: "deploy"}
	return f.exec, nil
}

func TestWebhook_Handler_RoutesStimulus(t *testing.T) {
	exec := domain.NewWorkflowExecution(domain.NewID(), "start", nil)
	wh := &Webhook{Router: &fakeRouter{exec: exec}}

	body, _ := json.Marshal(webhookRequest{Content: "deploy to prod"})
	req := httptest.NewRequest(http.MethodPost, "/stimuli", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	wh.Handler()(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, exec.ExecutionID().String(), resp.ExecutionID)
	assert.Equal(t, "deploy", resp.Intent)
}

func TestWebhook_Handler_MissingContentRejected(t *testing.T) {
	wh := &Webhook{Router: &fakeRouter{}}
	req := httptest.NewRequest(http.MethodPost, "/stimuli", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	wh.Handler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_Handler_OverCapacityReturns429(t *testing.T) {
	wh := &Webhook{Router: &fakeRouter{err: domain.NewDomainError(domain.ErrOverCapacity, "too busy", nil)}}
	body, _ := json.Marshal(webhookRequest{Content: "deploy to prod"})
	req := httptest.NewRequest(http.MethodPost, "/stimuli", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	wh.Handler()(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestManual_Submit_RoutesAsStdinStimulus(t *testing.T) {
	exec := domain.NewWorkflowExecution(domain.NewID(), "start", nil)
	m := &Manual{Router: &fakeRouter{exec: exec}}

	got, err := m.Submit(context.Background(), "run the nightly report", nil)
	require.NoError(t, err)
	assert.Equal(t, exec.ExecutionID(), got.ExecutionID())
}
