package domain

import (
	"strings"
	"time"
)

// StimulusSource tags where a Stimulus originated.
type StimulusSource string

const (
	SourceStdin     StimulusSource = "stdin"
	SourceWebhook   StimulusSource = "webhook"
	SourceWebsocket StimulusSource = "websocket"
	SourceFileWatch StimulusSource = "file_watch"
	SourceCron      StimulusSource = "cron"
)

// Classification is the Router Agent's verdict on a Stimulus.
type Classification struct {
	Intent              string
	Confidence          float64
	WorkflowID          ID
	Parameters          map[string]any
	ClassifiedAt        time.Time
	ClassifiedByAgentID ID
}

// Stimulus is a free-text request entering the system for classification
// and dispatch.
type Stimulus struct {
	StimulusID     ID
	Source         StimulusSource
	Content        string
	Metadata       map[string]any
	ReceivedAt     time.Time
	Classification *Classification
}

// NewStimulus records a freshly received stimulus.
func NewStimulus(source StimulusSource, content string, metadata map[string]any) *Stimulus {
	return &Stimulus{
		StimulusID: NewID(),
		Source:     source,
		Content:    content,
		Metadata:   metadata,
		ReceivedAt: time.Now(),
	}
}

// WorkflowRegistration maps an intent pattern to a workflow. Pattern
// matching supports exact, prefix ("p*"), suffix ("*s"), or
// single-wildcard ("a*b").
type WorkflowRegistration struct {
	RegistrationID ID
	IntentPattern  string
	WorkflowID     ID
	Priority       uint32
	Enabled        bool
}

// Matches reports whether intent satisfies this registration's
// exact/prefix/suffix/single-wildcard pattern.
func (r WorkflowRegistration) Matches(intent string) bool {
	p := r.IntentPattern
	switch {
	case !strings.Contains(p, "*"):
		return p == intent
	case strings.HasSuffix(p, "*") && !strings.HasPrefix(p, "*"):
		return strings.HasPrefix(intent, strings.TrimSuffix(p, "*"))
	case strings.HasPrefix(p, "*") && !strings.HasSuffix(p, "*"):
		return strings.HasSuffix(intent, strings.TrimPrefix(p, "*"))
	default:
		// single-wildcard "a*b": prefix before the first '*' and suffix
		// after it, both required, non-overlapping.
		idx := strings.Index(p, "*")
		prefix, suffix := p[:idx], p[idx+1:]
		return len(intent) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(intent, prefix) &&
			strings.HasSuffix(intent, suffix)
	}
}
