package core

import "time"

// IntentReference identifies a unit of routable work. Equality is
// exact on both Name and Version.
type IntentReference struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Equal reports whether two intent references name the same intent.
func (r IntentReference) Equal(other IntentReference) bool {
	return r.Name == other.Name && r.Version == other.Version
}

func (r IntentReference) String() string {
	return r.Name + "/" + r.Version
}

// RoutingStrategy selects how the router dispatches candidates.
type RoutingStrategy string

const (
	StrategyDirect    RoutingStrategy = "DIRECT"
	StrategyFallback  RoutingStrategy = "FALLBACK"
	StrategyBroadcast RoutingStrategy = "BROADCAST"
	StrategyParallel  RoutingStrategy = "PARALLEL"
)

// RoutingOptions carries the caller's strategy choice and, for DIRECT,
// the specific target agent.
type RoutingOptions struct {
	Strategy    RoutingStrategy `json:"strategy"`
	TargetAgent string          `json:"targetAgent,omitempty"`
}

// RoutingMetadata accumulates the ordered list of agent names the
// router has attempted so far. It is append-only: the router never
// removes or reorders entries already written to it.
type RoutingMetadata struct {
	DecisionPath []string `json:"decisionPath"`
}

// Append records that agentName was attempted next, in order.
func (m *RoutingMetadata) Append(agentName string) {
	m.DecisionPath = append(m.DecisionPath, agentName)
}

// IntentEnvelope is the routable container wrapping an intent with
// payload, context, routing options, and metadata. Envelope is owned
// by the caller until passed to Router.Route; after that call the
// router may mutate only RoutingMetadata (append-only) and
// Metadata's in-flight fields.
type IntentEnvelope struct {
	Version         string                 `json:"version"`
	Intent          IntentReference        `json:"intent"`
	Payload         map[string]Value       `json:"payload,omitempty"`
	Context         map[string]Value       `json:"context,omitempty"`
	Metadata        map[string]Value       `json:"metadata,omitempty"`
	Routing         RoutingOptions         `json:"routing"`
	RoutingMetadata RoutingMetadata        `json:"routingMetadata"`
	IdempotencyKey  string                 `json:"idempotencyKey,omitempty"`
	Contract        *ExecutionContract     `json:"contract,omitempty"`
	SideEffect      SideEffectClass        `json:"sideEffect,omitempty"`
}

// EnvelopeHash computes the content hash used to cross-link an
// envelope to its execution.started WAL entry and ExecutionRecord.
func (e *IntentEnvelope) EnvelopeHash() (string, error) {
	return ContentHash(e)
}

// AgentDefinition describes a registrable agent: its unique name,
// optional node placement, the capabilities it offers, and the
// address an AgentInvoker uses to reach it.
type AgentDefinition struct {
	Name         string       `json:"name"`
	NodeID       string       `json:"nodeId,omitempty"`
	NodePriority int          `json:"nodePriority"`
	Capabilities []Capability `json:"capabilities"`
	// Endpoint is the base URL an HTTP AgentInvoker POSTs envelopes to
	// (at Endpoint + "/invoke"). Empty for agents reached through a
	// different transport (in-process, gRPC, a test fake).
	Endpoint string `json:"endpoint,omitempty"`
}

// Capability is an agent's declared ability to handle a specific
// intent reference, with optional schemas and a fallback chain.
type Capability struct {
	Intent         IntentReference `json:"intent"`
	InputSchema    string          `json:"inputSchema,omitempty"`
	OutputSchema   string          `json:"outputSchema,omitempty"`
	FallbackAgents []string        `json:"fallbackAgents,omitempty"`
}

// ErrorInfo carries structured error detail inside an AgentResponse.
type ErrorInfo struct {
	Code      string           `json:"code"`
	Subtype   string           `json:"subtype,omitempty"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
	Details   map[string]Value `json:"details,omitempty"`
}

// AgentResponseStatus is success or error.
type AgentResponseStatus string

const (
	ResponseSuccess AgentResponseStatus = "success"
	ResponseError   AgentResponseStatus = "error"
)

// AgentResponse is what an agent invocation (or the router, after
// normalization) returns.
type AgentResponse struct {
	Status   AgentResponseStatus `json:"status"`
	Payload  map[string]Value    `json:"payload,omitempty"`
	Error    *ErrorInfo          `json:"error,omitempty"`
	Metadata map[string]Value    `json:"metadata,omitempty"`
}

// ResponseHash computes the content hash of the whole response
// (status, payload, error and metadata); the router stores it as
// responseHash in step.completed and execution.completed WAL entries.
func (r *AgentResponse) ResponseHash() (string, error) {
	return ContentHash(r)
}

// SideEffectClass classifies an operation's replay safety.
type SideEffectClass string

const (
	SideEffectReadOnly    SideEffectClass = "READ_ONLY"
	SideEffectReversible  SideEffectClass = "REVERSIBLE"
	SideEffectIrreversible SideEffectClass = "IRREVERSIBLE"
)

// rank orders side-effect classes for escalation comparisons:
// READ_ONLY < REVERSIBLE < IRREVERSIBLE.
func (c SideEffectClass) rank() int {
	switch c {
	case SideEffectReadOnly:
		return 0
	case SideEffectReversible:
		return 1
	case SideEffectIrreversible:
		return 2
	default:
		return -1
	}
}

// IsEscalationFrom reports whether moving from prev to c is an allowed
// escalation (READ_ONLY -> REVERSIBLE -> IRREVERSIBLE, or staying the
// same). Any transition out of IRREVERSIBLE is forbidden.
func (c SideEffectClass) IsEscalationFrom(prev SideEffectClass) bool {
	if prev == SideEffectIrreversible {
		return c == SideEffectIrreversible
	}
	return c.rank() >= prev.rank()
}

// ExecutionContract declares the execution guarantees a step must
// satisfy: exactly-once semantics, retry bounds, timeout, and a cost
// budget.
type ExecutionContract struct {
	ExactlyOnce       bool    `json:"exactlyOnce"`
	NoRetry           bool    `json:"noRetry"`
	MaxRetries        int     `json:"maxRetries"`
	IdempotentRequired bool   `json:"idempotentRequired"`
	TimeoutMs         int     `json:"timeoutMs"`
	MaxCostUnits      float64 `json:"maxCostUnits"`
}

// Timeout returns TimeoutMs as a time.Duration.
func (c *ExecutionContract) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ComplianceMode sets the router's enforcement posture at init time.
type ComplianceMode string

const (
	ModeDevelopment ComplianceMode = "DEVELOPMENT"
	ModeStandard    ComplianceMode = "STANDARD"
	ModeRegulated   ComplianceMode = "REGULATED"
)
