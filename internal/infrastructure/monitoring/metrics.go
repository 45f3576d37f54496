package monitoring

import (
	"sync"
	"time"
)

// MetricsCollector collects in-process execution metrics: workflow
// execution durations/outcomes, per-state durations, per-agent iteration
// verdicts, and model-invocation token usage/latency. It has no external
// time-series export; it only accumulates counters a caller can read
// back or log periodically.
type MetricsCollector struct {
	mu sync.RWMutex

	executions map[string]*ExecutionMetrics // by workflow ID
	states     map[string]*StateMetrics     // by state name
	agents     map[string]*AgentMetrics     // by agent ID
	model      *ModelMetrics
}

// ExecutionMetrics aggregates outcomes for a workflow definition across all
// of its executions.
type ExecutionMetrics struct {
	WorkflowID      string        `json:"workflow_id"`
	ExecutionCount  int           `json:"execution_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastExecutionAt time.Time     `json:"last_execution_at"`
}

// StateMetrics aggregates how long a named state takes to run across
// every execution that visits it.
type StateMetrics struct {
	StateName       string        `json:"state_name"`
	VisitCount      int           `json:"visit_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

// AgentMetrics aggregates iteration verdicts for one agent across every
// AgentExecution that invokes it.
type AgentMetrics struct {
	AgentID        string `json:"agent_id"`
	IterationCount int    `json:"iteration_count"`
	PassCount      int    `json:"pass_count"`
	RefineCount    int    `json:"refine_count"`
	FailCount      int    `json:"fail_count"`
}

// ModelMetrics tracks model-invocation token usage and latency.
type ModelMetrics struct {
	TotalRequests    int           `json:"total_requests"`
	TotalTokens      int           `json:"total_tokens"`
	PromptTokens     int           `json:"prompt_tokens"`
	OutputTokens     int           `json:"output_tokens"`
	AverageLatency   time.Duration `json:"average_latency"`
	mu               sync.RWMutex
}

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		executions: make(map[string]*ExecutionMetrics),
		states:     make(map[string]*StateMetrics),
		agents:     make(map[string]*AgentMetrics),
		model:      &ModelMetrics{},
	}
}

// RecordExecution records the outcome of one completed workflow execution.
func (mc *MetricsCollector) RecordExecution(duration time.Duration, success bool) {
	mc.recordExecutionFor("", duration, success)
}

// RecordExecutionFor records the outcome of one completed execution of a
// specific workflow ID, allowing per-workflow success-rate queries.
func (mc *MetricsCollector) RecordExecutionFor(workflowID string, duration time.Duration, success bool) {
	mc.recordExecutionFor(workflowID, duration, success)
}

func (mc *MetricsCollector) recordExecutionFor(workflowID string, duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.executions[workflowID]
	if !ok {
		m = &ExecutionMetrics{WorkflowID: workflowID, MinDuration: duration, MaxDuration: duration}
		mc.executions[workflowID] = m
	}
	m.ExecutionCount++
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	m.TotalDuration += duration
	m.AverageDuration = m.TotalDuration / time.Duration(m.ExecutionCount)
	m.LastExecutionAt = time.Now()
	if duration < m.MinDuration {
		m.MinDuration = duration
	}
	if duration > m.MaxDuration {
		m.MaxDuration = duration
	}
}

// RecordState records one state visit's duration.
func (mc *MetricsCollector) RecordState(stateName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.states[stateName]
	if !ok {
		m = &StateMetrics{StateName: stateName, MinDuration: duration, MaxDuration: duration}
		mc.states[stateName] = m
	}
	m.VisitCount++
	m.TotalDuration += duration
	m.AverageDuration = m.TotalDuration / time.Duration(m.VisitCount)
	if duration < m.MinDuration {
		m.MinDuration = duration
	}
	if duration > m.MaxDuration {
		m.MaxDuration = duration
	}
}

// RecordIteration records one agent iteration's verdict.
func (mc *MetricsCollector) RecordIteration(agentID string, verdict string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.agents[agentID]
	if !ok {
		m = &AgentMetrics{AgentID: agentID}
		mc.agents[agentID] = m
	}
	m.IterationCount++
	switch verdict {
	case "pass":
		m.PassCount++
	case "refine":
		m.RefineCount++
	case "fail":
		m.FailCount++
	}
}

// RecordModelInvocation records one Model Invocation call's token usage and
// latency.
func (mc *MetricsCollector) RecordModelInvocation(promptTokens, outputTokens int, latency time.Duration) {
	mc.model.mu.Lock()
	defer mc.model.mu.Unlock()

	mc.model.TotalRequests++
	mc.model.PromptTokens += promptTokens
	mc.model.OutputTokens += outputTokens
	mc.model.TotalTokens += promptTokens + outputTokens

	totalLatency := time.Duration(mc.model.TotalRequests-1) * mc.model.AverageLatency
	mc.model.AverageLatency = (totalLatency + latency) / time.Duration(mc.model.TotalRequests)
}

// ExecutionMetricsFor returns a copy of the metrics for workflowID, or nil.
func (mc *MetricsCollector) ExecutionMetricsFor(workflowID string) *ExecutionMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if m, ok := mc.executions[workflowID]; ok {
		c := *m
		return &c
	}
	return nil
}

// StateMetricsFor returns a copy of the metrics for stateName, or nil.
func (mc *MetricsCollector) StateMetricsFor(stateName string) *StateMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if m, ok := mc.states[stateName]; ok {
		c := *m
		return &c
	}
	return nil
}

// AgentMetricsFor returns a copy of the metrics for agentID, or nil.
func (mc *MetricsCollector) AgentMetricsFor(agentID string) *AgentMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if m, ok := mc.agents[agentID]; ok {
		c := *m
		return &c
	}
	return nil
}

// ModelMetricsSnapshot returns a copy of current model-invocation metrics.
func (mc *MetricsCollector) ModelMetricsSnapshot() ModelMetrics {
	mc.model.mu.RLock()
	defer mc.model.mu.RUnlock()
	return ModelMetrics{
		TotalRequests:  mc.model.TotalRequests,
		TotalTokens:    mc.model.TotalTokens,
		PromptTokens:   mc.model.PromptTokens,
		OutputTokens:   mc.model.OutputTokens,
		AverageLatency: mc.model.AverageLatency,
	}
}

// Summary is a point-in-time rollup across every tracked dimension.
type Summary struct {
	TotalWorkflows     int     `json:"total_workflows"`
	TotalExecutions    int     `json:"total_executions"`
	TotalSuccesses     int     `json:"total_successes"`
	TotalFailures      int     `json:"total_failures"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
	TotalIterations    int     `json:"total_iterations"`
	TotalRefinements   int     `json:"total_refinements"`
	TotalModelRequests int     `json:"total_model_requests"`
	TotalModelTokens   int     `json:"total_model_tokens"`
}

// Summary rolls up all metrics into a single snapshot.
func (mc *MetricsCollector) Summary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Summary{TotalWorkflows: len(mc.executions)}
	for _, wm := range mc.executions {
		s.TotalExecutions += wm.ExecutionCount
		s.TotalSuccesses += wm.SuccessCount
		s.TotalFailures += wm.FailureCount
	}
	if s.TotalExecutions > 0 {
		s.OverallSuccessRate = float64(s.TotalSuccesses) / float64(s.TotalExecutions)
	}
	for _, am := range mc.agents {
		s.TotalIterations += am.IterationCount
		s.TotalRefinements += am.RefineCount
	}

	mc.model.mu.RLock()
	s.TotalModelRequests = mc.model.TotalRequests
	s.TotalModelTokens = mc.model.TotalTokens
	mc.model.mu.RUnlock()

	return s
}

// Reset clears all collected metrics; used between test cases.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.executions = make(map[string]*ExecutionMetrics)
	mc.states = make(map[string]*StateMetrics)
	mc.agents = make(map[string]*AgentMetrics)
	mc.model = &ModelMetrics{}
}
