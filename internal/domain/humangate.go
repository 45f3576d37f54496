package domain

import "time"

// HumanRequestStatus is the lifecycle of a pending Human Gate entry.
type HumanRequestStatus string

const (
	HumanRequestPending   HumanRequestStatus = "pending"
	HumanRequestResponded HumanRequestStatus = "responded"
	HumanRequestTimedOut  HumanRequestStatus = "timed_out"
	HumanRequestCancelled HumanRequestStatus = "cancelled"
)

// HumanResponse is what an external caller submits to respond_human.
type HumanResponse struct {
	Decision string
	Feedback *string
	Data     map[string]any
	TimedOut bool
}

// HumanInputRequest is a registry entry created when a Human state is
// entered.
type HumanInputRequest struct {
	RequestID   ID
	ExecutionID ID
	StateName   string
	Prompt      string
	Status      HumanRequestStatus
	CreatedAt   time.Time
	TimeoutAt   time.Time
	Response    *HumanResponse
}

// NewHumanInputRequest creates a pending request for the given Human state.
func NewHumanInputRequest(executionID ID, stateName, prompt string, timeout time.Duration) *HumanInputRequest {
	now := time.Now()
	return &HumanInputRequest{
		RequestID:   NewID(),
		ExecutionID: executionID,
		StateName:   stateName,
		Prompt:      prompt,
		Status:      HumanRequestPending,
		CreatedAt:   now,
		TimeoutAt:   now.Add(timeout),
	}
}

// Respond validates the request is pending and records the response,
// returning ErrInvalidState (mapped by callers to a "conflict" result) on a
// second call against an already-resolved request, without altering its
// recorded state.
func (r *HumanInputRequest) Respond(resp HumanResponse) error {
	if r.Status != HumanRequestPending {
		return NewDomainError(ErrCodeInvalidState, "human input request is no longer pending", nil)
	}
	r.Response = &resp
	if resp.TimedOut {
		r.Status = HumanRequestTimedOut
	} else {
		r.Status = HumanRequestResponded
	}
	return nil
}

// Cancel marks a pending request cancelled (e.g. its parent execution was
// cancelled while waiting).
func (r *HumanInputRequest) Cancel() {
	if r.Status == HumanRequestPending {
		r.Status = HumanRequestCancelled
	}
}
