package durability

import (
	"context"

	"go.temporal.io/sdk/client"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// TemporalSignaler implements humangate.SignalDeliverer (without importing
// that package — see its own doc comment on why the seam is narrow) over a
// live Temporal client's SignalWorkflow call. It is the production
// counterpart to TestRuntime.DeliverSignal: where TestRuntime pushes
// straight into an in-process channel, TemporalSignaler asks the Temporal
// server to deliver the signal to whatever workflow execution is currently
// blocked in AwaitSignal, wherever that execution happens to be running.
//
// respond_human addresses requests by their pending HumanInputRequest,
// which already carries the owning execution ID; the workflow driver
// (cmd/server) starts every Temporal workflow with that execution ID
// string as its Temporal workflow ID, so executionID.String() always names
// the right target. RunID is left empty to target the workflow's current
// run.
type TemporalSignaler struct {
	Client client.Client
}

// NewTemporalSignaler wraps a connected Temporal client.
func NewTemporalSignaler(c client.Client) *TemporalSignaler {
	return &TemporalSignaler{Client: c}
}

// DeliverSignal signals the Temporal workflow execution running
// executionID, using name as the Temporal signal name (scoped by request
// ID — see humangate.signalName) and value as its payload.
func (s *TemporalSignaler) DeliverSignal(ctx context.Context, executionID domain.ID, name string, value any) error {
	return s.Client.SignalWorkflow(ctx, executionID.String(), "", name, value)
}
