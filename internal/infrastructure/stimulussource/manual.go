package stimulussource

import (
	"context"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Manual is a direct in-process stimulus intake for operator- or
// script-submitted input, e.g. a CLI command or an internal scheduler
// tick, as opposed to an inbound network listener. It's modeled as
// domain.SourceStdin, the closest fit among the declared stimulus
// sources for a request submitted directly rather than received over
// the network.
type Manual struct {
	Router Router
}

// Submit routes content as a single stimulus and returns the resulting
// execution.
func (m *Manual) Submit(ctx context.Context, content string, metadata map[string]any) (*domain.WorkflowExecution, error) {
	stim := domain.NewStimulus(domain.SourceStdin, content, metadata)
	return m.Router.Route(ctx, stim)
}
