package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
)

// KeyPair is an Ed25519 signing identity addressable by KeyID. Signing
// keys for REGULATED-mode WAL entries are looked up by KeyID through a
// KeyRegistry rather than carried inline on each entry.
type KeyPair struct {
	KeyID      string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a new Ed25519 key pair under the given KeyID.
// Operators are expected to persist the private key in their own
// secret store; this runtime never writes private key material to
// disk on its own.
func GenerateKeyPair(keyID string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("core: generate ed25519 key: %w", err)
	}
	return &KeyPair{KeyID: keyID, PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs canonical bytes (already produced by MarshalCanonical
// over the entry minus its signature field) and returns the
// base64-encoded Ed25519 signature.
func (k *KeyPair) Sign(canonicalBytes []byte) string {
	sig := ed25519.Sign(k.PrivateKey, canonicalBytes)
	return base64.StdEncoding.EncodeToString(sig)
}

// KeyRegistry resolves a keyId to the public key used to verify a WAL
// entry's signature. Thread-safe for concurrent reads during WAL
// verification and writes during key rotation.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewKeyRegistry creates an empty key registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[string]ed25519.PublicKey)}
}

// Register adds or replaces the public key for keyID.
func (r *KeyRegistry) Register(keyID string, pub ed25519.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[keyID] = pub
}

// Lookup returns the public key registered for keyID.
func (r *KeyRegistry) Lookup(keyID string) (ed25519.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[keyID]
	return pub, ok
}

// Verify checks a base64 Ed25519 signature over canonicalBytes against
// the public key registered under keyID. Returns
// ErrSignatureKeyUnknown if keyID isn't registered, or
// ErrSignatureInvalid if the signature doesn't verify.
func (r *KeyRegistry) Verify(keyID string, canonicalBytes []byte, signatureB64 string) error {
	pub, ok := r.Lookup(keyID)
	if !ok {
		return NewFrameworkError("KeyRegistry.Verify", "wal_integrity", ErrSignatureKeyUnknown).
			WithID(keyID)
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return NewFrameworkError("KeyRegistry.Verify", "wal_integrity", ErrSignatureInvalid).
			WithID(keyID)
	}
	if !ed25519.Verify(pub, canonicalBytes, sig) {
		return NewFrameworkError("KeyRegistry.Verify", "wal_integrity", ErrSignatureInvalid).
			WithID(keyID)
	}
	return nil
}
