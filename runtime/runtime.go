// Package runtime bundles the components an execrt process needs
// into a single handle constructed once at startup and passed by
// reference everywhere else: the registry, the recorder, the recovery
// manager, the CLI index, and the signing key store. There is no
// process-wide mutable singleton anywhere in this module; every
// package that needs one of these talks to the Runtime that was
// handed to it.
package runtime

import (
	"context"
	"fmt"

	"github.com/gomind-labs/execrt/cliindex"
	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/cost"
	"github.com/gomind-labs/execrt/idempotency"
	"github.com/gomind-labs/execrt/recorder"
	"github.com/gomind-labs/execrt/recovery"
	"github.com/gomind-labs/execrt/registry"
	"github.com/gomind-labs/execrt/router"
	"github.com/gomind-labs/execrt/telemetry"
)

// Runtime is the long-lived handle a CLI command or an embedding
// program builds once and threads through everything it calls.
type Runtime struct {
	Config   *core.Config
	Logger   core.Logger
	Registry registry.Registry
	Keys     *core.KeyRegistry
	Signer   *core.KeyPair

	Recorder *recorder.Recorder
	Recovery *recovery.Manager
	Index    *cliindex.Index

	Idempotency *idempotency.Index

	Telemetry    *telemetry.Provider
	shutdownTel  func(context.Context) error
}

// Option customizes New.
type Option func(*buildOpts)

type buildOpts struct {
	signer *core.KeyPair
	keys   *core.KeyRegistry
}

// WithSigner supplies the Ed25519 key pair used to sign WAL entries
// under REGULATED compliance (or whenever cfg.SignWAL is set).
func WithSigner(kp *core.KeyPair) Option {
	return func(o *buildOpts) { o.signer = kp }
}

// WithKeyRegistry supplies the public-key registry used to verify WAL
// signatures on read. If omitted and a signer is supplied, New
// registers the signer's own public key so a single-process runtime
// can both sign and verify.
func WithKeyRegistry(keys *core.KeyRegistry) Option {
	return func(o *buildOpts) { o.keys = keys }
}

// New validates cfg, opens the configured registry backend, and
// assembles every long-lived component New's callers need. It does
// not construct a Router: routing also needs an AgentInvoker, which
// is a transport-layer concern outside this package's scope. Call
// NewRouter on the returned Runtime once an invoker is available.
func New(ctx context.Context, cfg *core.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &buildOpts{}
	for _, opt := range opts {
		opt(o)
	}
	if o.keys == nil {
		o.keys = core.NewKeyRegistry()
	}
	if o.signer != nil {
		o.keys.Register(o.signer.KeyID, o.signer.PublicKey)
	}

	logger := cfg.Logger()

	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	if err := core.EnsureDir(cfg.WALDir); err != nil {
		return nil, err
	}
	if err := core.EnsureDir(cfg.RecordsDir); err != nil {
		return nil, err
	}
	if err := core.EnsureDir(cfg.IdempotencyDir); err != nil {
		return nil, err
	}

	idx, err := cliindex.Open(cfg.CLIIndexPath)
	if err != nil {
		return nil, err
	}

	var tel *telemetry.Provider
	var shutdownTel func(context.Context) error
	if cfg.Telemetry.Enabled {
		tel, shutdownTel, err = telemetry.NewProvider(ctx, cfg.Telemetry, cfg.Development, logger)
		if err != nil {
			idx.Close()
			return nil, err
		}
	}

	recoveryMgr := recovery.NewManager(cfg.WALDir, o.keys, logger)
	if o.signer != nil {
		recoveryMgr.SetSigner(o.signer, cfg.SignWAL)
	}

	rec := recorder.NewRecorder(cfg.RecordsDir, logger)
	if cfg.RedactPII {
		rec.SetRedaction(cfg.RedactPIIFields)
	}

	rt := &Runtime{
		Config:      cfg,
		Logger:      logger,
		Registry:    reg,
		Keys:        o.keys,
		Signer:      o.signer,
		Recorder:    rec,
		Recovery:    recoveryMgr,
		Index:       idx,
		Idempotency: idempotency.NewIndex(cfg.IdempotencyDir),
		Telemetry:   tel,
		shutdownTel: shutdownTel,
	}
	return rt, nil
}

func buildRegistry(cfg *core.Config) (registry.Registry, error) {
	switch cfg.Registry.Provider {
	case "", "memory":
		return registry.NewInMemoryRegistry(), nil
	case "redis":
		return registry.NewRedisRegistry(cfg.Registry.RedisURL, "execrt", cfg.Registry.TTL)
	default:
		return nil, fmt.Errorf("runtime: unknown registry provider %q", cfg.Registry.Provider)
	}
}

// NewRouter builds a Router wired to this Runtime's registry, signer,
// and telemetry, dispatching to invoker for the actual agent calls.
func (rt *Runtime) NewRouter(invoker router.AgentInvoker) (*router.Router, error) {
	rtr, err := router.NewRouter(rt.Config, rt.Registry, invoker, rt.Signer, rt.Telemetry)
	if err != nil {
		return nil, err
	}
	rtr.SetIdempotencyChecker(rt.Idempotency)
	rtr.SetCostEstimator(cost.Estimator)
	return rtr, nil
}

// RebuildIndex replays WALDir/RecordsDir into the CLI introspection
// index. Safe to call at any time; the index has no state the WAL and
// records directories don't already contain.
func (rt *Runtime) RebuildIndex(ctx context.Context) error {
	return rt.Index.Rebuild(ctx, rt.Config.WALDir, rt.Config.RecordsDir, rt.Keys)
}

// Close releases everything the Runtime opened: the CLI index's
// sqlite connection and, if telemetry was enabled, its exporter.
func (rt *Runtime) Close(ctx context.Context) error {
	var firstErr error
	if rt.shutdownTel != nil {
		if err := rt.shutdownTel(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Index != nil {
		if err := rt.Index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
