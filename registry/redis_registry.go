package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gomind-labs/execrt/core"
)

// RedisRegistry is a Registry backend shared across multiple execrt
// processes. Agent definitions are stored with a TTL so a crashed
// agent's entry expires instead of lingering forever. Register rejects
// a name that already has a live entry with ErrDuplicateAgent, same as
// InMemoryRegistry; a long-lived agent wanting to renew its TTL before
// expiry must Deregister first.
type RedisRegistry struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisRegistry connects to redisURL and verifies reachability
// before returning.
func NewRedisRegistry(redisURL, namespace string, ttl time.Duration) (*RedisRegistry, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewFrameworkError("NewRedisRegistry", "configuration", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("NewRedisRegistry", string(core.KindTransportError), err).WithID(redisURL)
	}
	if namespace == "" {
		namespace = "execrt"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisRegistry{client: client, namespace: namespace, ttl: ttl}, nil
}

func (r *RedisRegistry) agentKey(name string) string {
	return fmt.Sprintf("%s:agents:%s", r.namespace, name)
}

func (r *RedisRegistry) intentKey(intent core.IntentReference) string {
	return fmt.Sprintf("%s:intents:%s/%s", r.namespace, intent.Name, intent.Version)
}

func (r *RedisRegistry) Register(ctx context.Context, agent core.AgentDefinition) error {
	key := r.agentKey(agent.Name)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return core.NewFrameworkError("RedisRegistry.Register", string(core.KindTransportError), err).WithID(agent.Name)
	}
	if exists > 0 {
		return core.NewFrameworkError("RedisRegistry.Register", string(core.KindDuplicateAgent), core.ErrDuplicateAgent).
			WithID(agent.Name)
	}

	data, err := json.Marshal(agent)
	if err != nil {
		return core.NewFrameworkError("RedisRegistry.Register", "configuration", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return core.NewFrameworkError("RedisRegistry.Register", string(core.KindTransportError), err).WithID(agent.Name)
	}

	for _, cap := range agent.Capabilities {
		ik := r.intentKey(cap.Intent)
		if err := r.client.SAdd(ctx, ik, agent.Name).Err(); err == nil {
			r.client.Expire(ctx, ik, r.ttl*2)
		}
	}
	return nil
}

func (r *RedisRegistry) Deregister(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.agentKey(name)).Err(); err != nil && err != redis.Nil {
		return core.NewFrameworkError("RedisRegistry.Deregister", string(core.KindTransportError), err).WithID(name)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, name string) (core.AgentDefinition, bool, error) {
	raw, err := r.client.Get(ctx, r.agentKey(name)).Result()
	if err == redis.Nil {
		return core.AgentDefinition{}, false, nil
	}
	if err != nil {
		return core.AgentDefinition{}, false, core.NewFrameworkError("RedisRegistry.Get", string(core.KindTransportError), err).WithID(name)
	}
	var agent core.AgentDefinition
	if err := json.Unmarshal([]byte(raw), &agent); err != nil {
		return core.AgentDefinition{}, false, core.NewFrameworkError("RedisRegistry.Get", string(core.KindWALIntegrityError), err).WithID(name)
	}
	return agent, true, nil
}

func (r *RedisRegistry) FindCapableAgents(ctx context.Context, intent core.IntentReference) ([]core.AgentDefinition, error) {
	names, err := r.client.SMembers(ctx, r.intentKey(intent)).Result()
	if err != nil && err != redis.Nil {
		return nil, core.NewFrameworkError("RedisRegistry.FindCapableAgents", string(core.KindTransportError), err)
	}

	out := make([]core.AgentDefinition, 0, len(names))
	for _, name := range names {
		agent, ok, err := r.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Entry expired between the set lookup and the get; the
			// heartbeat lapsed, so skip it rather than error.
			continue
		}
		out = append(out, agent)
	}
	return out, nil
}
