package domain

// AgentStatus is the lifecycle status of a deployed Agent.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentPaused   AgentStatus = "paused"
	AgentArchived AgentStatus = "archived"
)

// NetworkMode and FilesystemMode describe an agent's sandbox policy.
type NetworkMode string

const (
	NetworkDenyAll NetworkMode = "deny-all"
	NetworkAllow   NetworkMode = "allow"
)

type FilesystemMode string

const (
	FilesystemReadOnly  FilesystemMode = "readonly"
	FilesystemReadWrite FilesystemMode = "readwrite"
)

// IsolationKind names the sandbox technology an agent requires.
type IsolationKind string

const (
	IsolationDocker  IsolationKind = "docker"
	IsolationMicroVM IsolationKind = "microvm"
)

// ResourceLimits bounds one agent invocation.
type ResourceLimits struct {
	CPUQuota       float64
	MemoryLimitMB  int
	TimeoutSeconds int
}

// SecurityPolicy is the isolation contract the core hands to the Isolation
// Provider: it MUST be enforced exactly, and the provider MUST fail closed
// on configuration errors.
type SecurityPolicy struct {
	Isolation  IsolationKind
	Network    NetworkMode
	Allowlist  []string
	Filesystem FilesystemMode
	AllowedPaths []string
	Resources  ResourceLimits
}

// LLMConfig is the model-invocation-relevant slice of an Agent Manifest.
type LLMConfig struct {
	Provider           string
	Model              string
	Temperature        float64
	MaxTokens          int
	SystemPrompt       string
	UserPromptTemplate string
}

// ValidationConfig is the manifest's optional built-in judge configuration.
// A workflow's Agent/ParallelAgents state normally expresses its own
// Judges and MaxIterations; when a state leaves those unset, the
// interpreter falls back to the invoked agent's own Validation default
// here, so an agent can ship with a baked-in validation policy that
// applies wherever no workflow overrides it.
type ValidationConfig struct {
	Enabled       bool
	Judges        []JudgeConfig
	MinScore      float64
	MaxIterations int
}

// OutputConfig describes the expected shape of an agent's final output.
type OutputConfig struct {
	Format string
	Schema map[string]any
}

// AgentManifest is the structured record the core consumes from a deployed
// agent. The core only ever reads AgentID and Manifest from the Agent
// aggregate; the rest of the deployment record (runtime image, ownership,
// billing) belongs to the surrounding platform, not this core.
type AgentManifest struct {
	Name     string
	Runtime  string
	LLM      LLMConfig
	Security SecurityPolicy
	Validation *ValidationConfig
	Output     *OutputConfig
}

// Agent is the deployed entity: created by registration, immutable after
// except for Status.
type Agent struct {
	AgentID  ID
	Name     string
	Version  string
	Manifest AgentManifest
	Status   AgentStatus
}

// NewAgent registers a new agent in the active status.
func NewAgent(name, version string, manifest AgentManifest) *Agent {
	return &Agent{
		AgentID:  NewID(),
		Name:     name,
		Version:  version,
		Manifest: manifest,
		Status:   AgentActive,
	}
}

// Pause transitions an active agent to paused; the router and interpreter
// MUST refuse to invoke a paused or archived agent.
func (a *Agent) Pause() { a.Status = AgentPaused }

// Archive permanently retires an agent.
func (a *Agent) Archive() { a.Status = AgentArchived }

// IsInvocable reports whether the agent may currently be invoked.
func (a *Agent) IsInvocable() bool { return a.Status == AgentActive }
