// Package registry tracks which agents are reachable and which
// intents each one can handle. It has no opinion on routing order;
// that deterministic ordering is applied by package router over
// whatever candidate set a Registry returns.
package registry

import (
	"context"
	"sync"

	"github.com/gomind-labs/execrt/core"
)

// Registry resolves an intent to the set of agents capable of
// handling it, and tracks agent liveness.
type Registry interface {
	// Register adds a new agent. Registering a name that is already
	// registered returns ErrDuplicateAgent regardless of NodeID; a
	// caller that wants to update an existing agent's definition must
	// Deregister it first.
	Register(ctx context.Context, agent core.AgentDefinition) error

	// Deregister removes an agent. It is not an error to deregister an
	// unknown name.
	Deregister(ctx context.Context, name string) error

	// Get returns the definition registered under name.
	Get(ctx context.Context, name string) (core.AgentDefinition, bool, error)

	// FindCapableAgents returns every registered agent that declares a
	// capability matching intent. InMemoryRegistry returns them in
	// registration order; RedisRegistry returns them in Redis set
	// order, which does not follow registration order. Router applies
	// the deterministic total ordering on top of this.
	FindCapableAgents(ctx context.Context, intent core.IntentReference) ([]core.AgentDefinition, error)
}

// InMemoryRegistry is a process-local Registry. It is the default
// backend (core.RegistryConfig.Provider == "memory") and the backend
// used by every router test.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	agents map[string]core.AgentDefinition
	order  []string // registration order, for FindCapableAgents' base ordering
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{agents: make(map[string]core.AgentDefinition)}
}

func (r *InMemoryRegistry) Register(_ context.Context, agent core.AgentDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agent.Name]; ok {
		return core.NewFrameworkError("InMemoryRegistry.Register", string(core.KindDuplicateAgent), core.ErrDuplicateAgent).
			WithID(agent.Name)
	}
	r.order = append(r.order, agent.Name)
	r.agents[agent.Name] = agent
	return nil
}

func (r *InMemoryRegistry) Deregister(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		return nil
	}
	delete(r.agents, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *InMemoryRegistry) Get(_ context.Context, name string) (core.AgentDefinition, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok, nil
}

func (r *InMemoryRegistry) FindCapableAgents(_ context.Context, intent core.IntentReference) ([]core.AgentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.AgentDefinition
	for _, name := range r.order {
		agent := r.agents[name]
		for _, cap := range agent.Capabilities {
			if cap.Intent.Equal(intent) {
				out = append(out, agent)
				break
			}
		}
	}
	return out, nil
}
