// Package router implements the intent router: deterministic
// candidate ordering, the four routing strategies (DIRECT, FALLBACK,
// BROADCAST, PARALLEL), WAL emission around every attempted step, and
// normalization of agent panics/errors into structured AgentResponses.
// The router never raises an error to its caller for anything an
// agent did wrong — every such failure comes back as
// AgentResponse{Status: error}; Route only returns a non-nil error for
// an infrastructure fault (e.g. the WAL directory isn't writable).
package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gomind-labs/execrt/contract"
	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/registry"
	"github.com/gomind-labs/execrt/telemetry"
	"github.com/gomind-labs/execrt/wal"
)

// AgentInvoker is the router's only dependency on transport: how to
// actually reach an agent and get a response back. Production
// implementations wrap HTTP/gRPC/whatever wire format; tests supply a
// function-backed fake. Invoke should return a structured error
// response inside AgentResponse for business failures, and a non-nil
// error only for invocation-layer failures (the router treats both
// the same way: INTERNAL_AGENT_ERROR, since by the time Invoke
// returns an error there was no structured AgentResponse to consult).
type AgentInvoker interface {
	Invoke(ctx context.Context, agent core.AgentDefinition, envelope *core.IntentEnvelope) (*core.AgentResponse, error)
}

// AgentInvokerFunc adapts a plain function to AgentInvoker.
type AgentInvokerFunc func(ctx context.Context, agent core.AgentDefinition, envelope *core.IntentEnvelope) (*core.AgentResponse, error)

func (f AgentInvokerFunc) Invoke(ctx context.Context, agent core.AgentDefinition, envelope *core.IntentEnvelope) (*core.AgentResponse, error) {
	return f(ctx, agent, envelope)
}

// CostEstimator returns a pre-execution cost estimate for an envelope,
// consulted against ExecutionContract.MaxCostUnits before
// execution.started is written.
type CostEstimator func(ctx context.Context, envelope *core.IntentEnvelope) (float64, error)

// IdempotencyChecker is the boundary the router calls through to
// dedup on IntentEnvelope.IdempotencyKey. It is satisfied by
// package idempotency's Index; kept as an interface here so router
// has no import-time dependency on it.
type IdempotencyChecker interface {
	Lookup(ctx context.Context, key string) (executionID string, found bool, err error)
	Record(ctx context.Context, key, executionID string) error
}

// Router dispatches IntentEnvelopes to registered agents under one of
// four strategies, durably recording every attempt to the WAL before
// returning a response.
type Router struct {
	cfg      *core.Config
	registry registry.Registry
	contracts *contract.Engine
	invoker  AgentInvoker
	signer   *core.KeyPair
	tracer   *telemetry.Provider
	logger   core.Logger
	hooks    *hookChain
	estimate CostEstimator
	idempotency IdempotencyChecker
}

// NewRouter validates cfg's compliance posture and constructs a
// Router. signer may be nil only when cfg.SignWAL is false.
func NewRouter(cfg *core.Config, reg registry.Registry, invoker AgentInvoker, signer *core.KeyPair, tracer *telemetry.Provider) (*Router, error) {
	if err := validateComplianceAtInit(cfg, signer); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, core.NewFrameworkError("router.NewRouter", string(core.KindContractViolation), fmt.Errorf("registry is required"))
	}
	if invoker == nil {
		return nil, core.NewFrameworkError("router.NewRouter", string(core.KindContractViolation), fmt.Errorf("agent invoker is required"))
	}
	logger := cfg.Logger()
	if cawLogger, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cawLogger.WithComponent("execrt/router")
	}
	if tracer == nil {
		var err error
		tracer, _, err = telemetry.NewProvider(context.Background(), core.TelemetryConfig{Enabled: false}, cfg.Development, logger)
		if err != nil {
			return nil, err
		}
	}
	return &Router{
		cfg:       cfg,
		registry:  reg,
		contracts: contract.NewEngine(logger),
		invoker:   invoker,
		signer:    signer,
		tracer:    tracer,
		logger:    logger,
		hooks:     newHookChain(logger),
	}, nil
}

// RegisterHook adds per-intent middleware, run around every Route
// call in registration order.
func (rt *Router) RegisterHook(h Hook) {
	rt.hooks.register(h)
}

// SetCostEstimator wires a pre-execution cost estimator; without one,
// budget checks are skipped (ExecutionContract.MaxCostUnits is only
// enforced when the caller supplies a way to estimate cost).
func (rt *Router) SetCostEstimator(e CostEstimator) {
	rt.estimate = e
}

// SetIdempotencyChecker wires idempotency-key dedup.
func (rt *Router) SetIdempotencyChecker(c IdempotencyChecker) {
	rt.idempotency = c
}

// strategyContext bundles the per-call state every strategy needs so
// attemptStep and its helpers don't carry a long parameter list.
type strategyContext struct {
	ctx         context.Context
	envelope    *core.IntentEnvelope
	executionID string
	writer      *wal.Writer
	metaMu      *sync.Mutex
}

// Route resolves candidates for envelope.Intent, orders them
// deterministically, and applies envelope.Routing.Strategy. It always
// returns a non-nil AgentResponse; the returned error is non-nil only
// for infrastructure faults that prevented routing from being
// attempted at all (e.g. the WAL directory could not be created).
func (rt *Router) Route(ctx context.Context, envelope *core.IntentEnvelope) (*core.AgentResponse, error) {
	rt.hooks.runBefore(ctx, envelope)

	if envelope.IdempotencyKey != "" && rt.idempotency != nil {
		if existingID, found, err := rt.idempotency.Lookup(ctx, envelope.IdempotencyKey); err != nil {
			rt.logger.Error("idempotency lookup failed", map[string]interface{}{"key": envelope.IdempotencyKey, "error": err.Error()})
		} else if found {
			resp := &core.AgentResponse{
				Status:   core.ResponseSuccess,
				Metadata: map[string]core.Value{"executionId": existingID, "idempotent": true},
			}
			rt.hooks.runAfter(ctx, envelope, resp)
			return resp, nil
		}
	}

	if err := contract.Validate(envelope.Contract, envelope.SideEffect); err != nil {
		resp := rt.toErrorResponse(err, core.KindContractViolation)
		rt.hooks.runAfter(ctx, envelope, resp)
		return resp, nil
	}

	switch envelope.Routing.Strategy {
	case core.StrategyDirect, core.StrategyFallback, core.StrategyBroadcast, core.StrategyParallel:
	default:
		resp := rt.toErrorResponse(core.NewFrameworkError("Router.Route", string(core.KindRoutingError),
			fmt.Errorf("unknown routing strategy %q", envelope.Routing.Strategy)).WithSubtype("invalid_strategy"), core.KindRoutingError)
		rt.hooks.runAfter(ctx, envelope, resp)
		return resp, nil
	}

	if envelope.Routing.Strategy == core.StrategyParallel && !parallelAllowed(rt.cfg) {
		resp := rt.toErrorResponse(core.NewFrameworkError("Router.Route", string(core.KindDeterminismViolation),
			core.ErrDeterminismParallelForbidden), core.KindDeterminismViolation)
		rt.hooks.runAfter(ctx, envelope, resp)
		return resp, nil
	}

	if rt.estimate != nil && envelope.Contract != nil && envelope.Contract.MaxCostUnits > 0 {
		cost, err := rt.estimate(ctx, envelope)
		if err != nil {
			resp := rt.toErrorResponse(core.NewFrameworkError("Router.Route", string(core.KindBudgetExceeded), err), core.KindBudgetExceeded)
			rt.hooks.runAfter(ctx, envelope, resp)
			return resp, nil
		}
		if err := contract.CheckBudget(envelope.Contract, cost); err != nil {
			resp := rt.toErrorResponse(err, core.KindBudgetExceeded)
			rt.hooks.runAfter(ctx, envelope, resp)
			return resp, nil
		}
	}

	candidates, err := rt.registry.FindCapableAgents(ctx, envelope.Intent)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		resp := rt.toErrorResponse(core.NewFrameworkError("Router.Route", string(core.KindCapabilityNotFound), core.ErrCapabilityNotFound).
			WithID(envelope.Intent.String()), core.KindCapabilityNotFound)
		rt.hooks.runAfter(ctx, envelope, resp)
		return resp, nil
	}
	ordered := orderCandidates(candidates)

	executionID := core.NewExecutionID()
	if envelope.IdempotencyKey != "" && rt.idempotency != nil {
		if err := rt.idempotency.Record(ctx, envelope.IdempotencyKey, executionID); err != nil {
			rt.logger.Error("idempotency record failed", map[string]interface{}{"key": envelope.IdempotencyKey, "error": err.Error()})
		}
	}

	spanCtx, span := rt.tracer.StartSpan(ctx, "execrt.route",
		"intent", envelope.Intent.String(),
		"strategy", string(envelope.Routing.Strategy),
		"executionId", executionID,
	)
	defer span.End()

	writer, err := wal.NewWriter(rt.cfg.WALDir, executionID, rt.signer, rt.cfg.SignWAL, rt.logger)
	if err != nil {
		return nil, err
	}

	sc := &strategyContext{
		ctx:         spanCtx,
		envelope:    envelope,
		executionID: executionID,
		writer:      writer,
		metaMu:      &sync.Mutex{},
	}

	envHash, err := envelope.EnvelopeHash()
	if err != nil {
		_ = writer.Close()
		return nil, core.NewFrameworkError("Router.Route", string(core.KindWALIntegrityError), err).WithID(executionID)
	}
	rt.writeEntry(sc, wal.EntryExecutionStarted, map[string]core.Value{
		"envelopeHash":  envHash,
		"intentName":    envelope.Intent.Name,
		"intentVersion": envelope.Intent.Version,
		"strategy":      string(envelope.Routing.Strategy),
		"sideEffect":    string(envelope.SideEffect),
	})

	var resp *core.AgentResponse
	switch envelope.Routing.Strategy {
	case core.StrategyDirect:
		resp = rt.runDirect(sc, ordered)
	case core.StrategyFallback:
		resp = rt.runFallback(sc, ordered)
	case core.StrategyBroadcast:
		resp = rt.runBroadcast(sc, ordered)
	case core.StrategyParallel:
		resp = rt.runParallel(sc, ordered)
	}

	if resp.Metadata == nil {
		resp.Metadata = map[string]core.Value{}
	}
	resp.Metadata["executionId"] = executionID
	resp.Metadata["decisionPath"] = append([]string(nil), envelope.RoutingMetadata.DecisionPath...)

	if resp.Status == core.ResponseSuccess {
		respHash, hashErr := resp.ResponseHash()
		payload := map[string]core.Value{"decisionPath": envelope.RoutingMetadata.DecisionPath}
		if hashErr == nil {
			payload["responseHash"] = respHash
		}
		rt.writeEntry(sc, wal.EntryExecutionCompleted, payload)
	} else {
		payload := map[string]core.Value{"decisionPath": envelope.RoutingMetadata.DecisionPath}
		if resp.Error != nil {
			payload["code"] = resp.Error.Code
			payload["message"] = resp.Error.Message
		}
		rt.writeEntry(sc, wal.EntryExecutionFailed, payload)
	}

	if err := writer.Close(); err != nil {
		rt.logger.Error("wal writer close failed", map[string]interface{}{"executionId": executionID, "error": err.Error()})
	}

	rt.hooks.runAfter(ctx, envelope, resp)
	return resp, nil
}

// runDirect invokes a single candidate: the explicit target if one is
// named, otherwise the highest-ranked candidate. No fallback is
// attempted on error.
func (rt *Router) runDirect(sc *strategyContext, ordered []core.AgentDefinition) *core.AgentResponse {
	target, found := selectDirectTarget(sc.envelope, ordered)
	if !found {
		return rt.toErrorResponse(core.NewFrameworkError("Router.runDirect", string(core.KindRoutingError), core.ErrTargetNotRegistered).
			WithID(sc.envelope.Routing.TargetAgent).WithSubtype("target_not_registered"), core.KindRoutingError)
	}
	resp, _ := rt.attemptStep(sc, target)
	return resp
}

func selectDirectTarget(envelope *core.IntentEnvelope, ordered []core.AgentDefinition) (core.AgentDefinition, bool) {
	if envelope.Routing.TargetAgent == "" {
		return ordered[0], true
	}
	for _, a := range ordered {
		if a.Name == envelope.Routing.TargetAgent {
			return a, true
		}
	}
	return core.AgentDefinition{}, false
}

// runFallback iterates ordered candidates sequentially, returning the
// first success. Once an IRREVERSIBLE step has started and failed, no
// further candidate is attempted: escalating past IRREVERSIBLE is
// forbidden, so the chain is exhausted immediately rather than risking
// a second side effect for the same logical step.
func (rt *Router) runFallback(sc *strategyContext, ordered []core.AgentDefinition) *core.AgentResponse {
	var last *core.AgentResponse
	for i, agent := range ordered {
		resp, _ := rt.attemptStep(sc, agent)
		last = resp
		if resp.Status == core.ResponseSuccess {
			return resp
		}

		if sc.envelope.SideEffect == core.SideEffectIrreversible {
			rt.writeEntry(sc, wal.EntryFallbackExhausted, map[string]core.Value{
				"reason": "irreversible_step_failed",
				"agent":  agent.Name,
			})
			return rt.toErrorResponse(core.NewFrameworkError("Router.runFallback", string(core.KindIrreversibleFailed), core.ErrIrreversibleInFlight).
				WithID(agent.Name), core.KindIrreversibleFailed)
		}

		if i == len(ordered)-1 {
			rt.writeEntry(sc, wal.EntryFallbackExhausted, map[string]core.Value{"lastAgent": agent.Name})
			return last
		}

		next := ordered[i+1]
		rt.writeEntry(sc, wal.EntryFallbackTriggered, map[string]core.Value{"from": agent.Name, "to": next.Name})
	}
	return last
}

// runBroadcast attempts every candidate in order and returns the last
// successful response, or the last failure if none succeeded.
func (rt *Router) runBroadcast(sc *strategyContext, ordered []core.AgentDefinition) *core.AgentResponse {
	var lastSuccess, lastAny *core.AgentResponse
	for _, agent := range ordered {
		resp, _ := rt.attemptStep(sc, agent)
		lastAny = resp
		if resp.Status == core.ResponseSuccess {
			lastSuccess = resp
		}
	}
	if lastSuccess != nil {
		return lastSuccess
	}
	return lastAny
}

// runParallel launches every candidate concurrently in deterministic
// order. The first success wins and is returned immediately; the
// remaining in-flight invocations are best-effort canceled but allowed
// to run to completion in the background. Route closes the WAL writer
// before returning, so a step entry a background invocation tries to
// append after that fails and is only logged.
func (rt *Router) runParallel(sc *strategyContext, ordered []core.AgentDefinition) *core.AgentResponse {
	results := make([]*core.AgentResponse, len(ordered))
	var mu sync.Mutex
	var wg sync.WaitGroup

	type outcome struct {
		idx  int
		resp *core.AgentResponse
	}
	successCh := make(chan outcome, len(ordered))

	workerCtx, cancel := context.WithCancel(sc.ctx)

	for i, agent := range ordered {
		wg.Add(1)
		go func(i int, agent core.AgentDefinition) {
			defer wg.Done()
			localSC := &strategyContext{
				ctx:         workerCtx,
				envelope:    sc.envelope,
				executionID: sc.executionID,
				writer:      sc.writer,
				metaMu:      sc.metaMu,
			}
			resp, _ := rt.attemptStep(localSC, agent)

			mu.Lock()
			results[i] = resp
			mu.Unlock()

			if resp.Status == core.ResponseSuccess {
				select {
				case successCh <- outcome{idx: i, resp: resp}:
				default:
				}
			}
		}(i, agent)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var winner *core.AgentResponse
	select {
	case o := <-successCh:
		winner = o.resp
	case <-done:
	}
	cancel()

	if winner != nil {
		go func() { <-done }()
		return winner
	}

	<-done
	mu.Lock()
	defer mu.Unlock()
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] != nil {
			return results[i]
		}
	}
	return rt.toErrorResponse(fmt.Errorf("parallel: no candidate produced a result"), core.KindInternalAgentError)
}

// attemptStep records one agent attempt end to end: exactly-once
// gating, step.started, the timeout-bounded invocation, and
// step.completed/step.failed. The returned error is always nil; it
// exists only so callers can use the same shape as other internal
// helpers.
func (rt *Router) attemptStep(sc *strategyContext, agent core.AgentDefinition) (*core.AgentResponse, error) {
	sc.metaMu.Lock()
	sc.envelope.RoutingMetadata.Append(agent.Name)
	sc.metaMu.Unlock()

	if err := rt.contracts.CheckExactlyOnce(sc.executionID, agent.Name, sc.envelope.Contract); err != nil {
		resp := rt.toErrorResponse(err, core.KindContractViolation)
		rt.writeEntry(sc, wal.EntryStepFailed, stepPayload(agent, resp))
		rt.hooks.runOnError(sc.ctx, sc.envelope, agent.Name, err)
		return resp, nil
	}

	rt.writeEntry(sc, wal.EntryStepStarted, map[string]core.Value{"agent": agent.Name})

	stepCtx, cancel := contract.WithTimeout(sc.ctx, sc.envelope.Contract)
	defer cancel()

	resp := rt.invokeAgent(stepCtx, agent, sc.envelope)

	if stepCtx.Err() == context.DeadlineExceeded {
		rt.writeEntry(sc, wal.EntryContractViolated, map[string]core.Value{"agent": agent.Name, "reason": "timeout_ms"})
		resp = rt.toErrorResponse(contract.ClassifyTimeout(context.DeadlineExceeded), core.KindTimeout)
	}

	if resp.Status == core.ResponseSuccess {
		rt.contracts.MarkCompleted(sc.executionID, agent.Name)
		rt.writeEntry(sc, wal.EntryStepCompleted, stepPayload(agent, resp))
		return resp, nil
	}

	rt.writeEntry(sc, wal.EntryStepFailed, stepPayload(agent, resp))
	if resp.Error != nil {
		rt.hooks.runOnError(sc.ctx, sc.envelope, agent.Name, errors.New(resp.Error.Message))
	}
	return resp, nil
}

// invokeAgent calls the configured AgentInvoker, converting any panic
// or invocation-layer error into a normalized error AgentResponse
// rather than letting it escape and crash the router.
func (rt *Router) invokeAgent(ctx context.Context, agent core.AgentDefinition, envelope *core.IntentEnvelope) (resp *core.AgentResponse) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("agent invocation panicked", map[string]interface{}{
				"agent": agent.Name,
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			})
			resp = &core.AgentResponse{
				Status: core.ResponseError,
				Error: &core.ErrorInfo{
					Code:      string(core.KindInternalAgentError),
					Message:   fmt.Sprintf("agent %s panicked: %v", agent.Name, r),
					Retryable: false,
				},
			}
		}
	}()

	out, err := rt.invoker.Invoke(ctx, agent, envelope)
	if err != nil {
		return &core.AgentResponse{
			Status: core.ResponseError,
			Error: &core.ErrorInfo{
				Code:      string(core.KindInternalAgentError),
				Message:   err.Error(),
				Retryable: false,
			},
		}
	}
	if out == nil {
		return &core.AgentResponse{
			Status: core.ResponseError,
			Error: &core.ErrorInfo{
				Code:      string(core.KindInternalAgentError),
				Message:   fmt.Sprintf("agent %s returned no response", agent.Name),
				Retryable: false,
			},
		}
	}
	return out
}

func stepPayload(agent core.AgentDefinition, resp *core.AgentResponse) map[string]core.Value {
	payload := map[string]core.Value{"agent": agent.Name, "status": string(resp.Status)}
	if resp.Error != nil {
		payload["code"] = resp.Error.Code
		payload["message"] = resp.Error.Message
	} else if hash, err := resp.ResponseHash(); err == nil {
		payload["responseHash"] = hash
	}
	return payload
}

func (rt *Router) writeEntry(sc *strategyContext, t wal.EntryType, payload map[string]core.Value) {
	if _, err := sc.writer.Append(t, payload); err != nil {
		rt.logger.Error("wal append failed", map[string]interface{}{
			"executionId": sc.executionID,
			"entryType":   string(t),
			"error":       err.Error(),
		})
	}
}

// toErrorResponse converts err into an AgentResponse, pulling
// Subtype/ID detail off a FrameworkError when present.
func (rt *Router) toErrorResponse(err error, kind core.ErrorKind) *core.AgentResponse {
	subtype := ""
	var fe *core.FrameworkError
	if errors.As(err, &fe) {
		subtype = fe.Subtype
	}
	return &core.AgentResponse{
		Status: core.ResponseError,
		Error: &core.ErrorInfo{
			Code:      string(kind),
			Subtype:   subtype,
			Message:   err.Error(),
			Retryable: core.RecoveryStrategyFor(kind) == core.RecoveryRetry || core.RecoveryStrategyFor(kind) == core.RecoveryRetryAfterDelay,
		},
	}
}
