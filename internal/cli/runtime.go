package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gomind-labs/execrt/core"
	execruntime "github.com/gomind-labs/execrt/runtime"
)

// envSigningKeySeed names the environment variable carrying a
// base64-encoded Ed25519 seed for REGULATED-mode WAL signing. The
// runtime never writes this material to disk itself (see
// core.GenerateKeyPair); operators supply it from their own secret
// store at process start.
const envSigningKeySeed = "EXECRT_SIGNING_KEY_SEED"

// loadSigner builds a KeyPair from EXECRT_SIGNING_KEY_SEED when set,
// so a freshly started CLI process under cfg.SignWAL can actually sign
// rather than silently writing unsigned entries.
func loadSigner(cfg *core.Config) (*core.KeyPair, error) {
	seedB64 := os.Getenv(envSigningKeySeed)
	if seedB64 == "" {
		return nil, nil
	}
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "decode "+envSigningKeySeed, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, NewExitError(ExitUsage, envSigningKeySeed+" must decode to a 32-byte ed25519 seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &core.KeyPair{
		KeyID:      cfg.SigningKeyID,
		PublicKey:  priv.Public().(ed25519.PublicKey),
		PrivateKey: priv,
	}, nil
}

// loadConfig applies the three-layer priority (defaults -> env ->
// functional options) and then overlays opts' CLI-flag overrides last,
// since a flag on this specific invocation should win over both.
func loadConfig(opts *RootOptions) (*core.Config, error) {
	cfg, err := core.NewConfig()
	if err != nil {
		return nil, err
	}

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitUsage, "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapExitError(ExitUsage, "parse config file", err)
		}
	}

	if opts.WALDir != "" {
		cfg.WALDir = opts.WALDir
	}
	if opts.RecordsDir != "" {
		cfg.RecordsDir = opts.RecordsDir
	}
	return cfg, nil
}

// buildRuntime loads config and constructs a Runtime, the shared
// entrypoint every subcommand uses so none of them duplicate startup
// wiring.
func buildRuntime(ctx context.Context, opts *RootOptions) (*execruntime.Runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	var runtimeOpts []execruntime.Option
	signer, err := loadSigner(cfg)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		runtimeOpts = append(runtimeOpts, execruntime.WithSigner(signer))
	}

	rt, err := execruntime.New(ctx, cfg, runtimeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "initialize runtime", err)
	}
	return rt, nil
}
