package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairSignAndVerify(t *testing.T) {
	kp, err := GenerateKeyPair("key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", kp.KeyID)

	msg := []byte(`{"a":1}`)
	sig := kp.Sign(msg)
	assert.NotEmpty(t, sig)

	registry := NewKeyRegistry()
	registry.Register(kp.KeyID, kp.PublicKey)

	err = registry.Verify(kp.KeyID, msg, sig)
	assert.NoError(t, err)
}

func TestKeyRegistryVerifyUnknownKeyID(t *testing.T) {
	registry := NewKeyRegistry()
	err := registry.Verify("missing", []byte("x"), "c2lnbmF0dXJl")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureKeyUnknown)
}

func TestKeyRegistryVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeyPair("key-1")
	require.NoError(t, err)

	registry := NewKeyRegistry()
	registry.Register(kp.KeyID, kp.PublicKey)

	sig := kp.Sign([]byte("original"))
	err = registry.Verify(kp.KeyID, []byte("tampered"), sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestKeyRegistryVerifyRejectsMalformedSignature(t *testing.T) {
	kp, err := GenerateKeyPair("key-1")
	require.NoError(t, err)

	registry := NewKeyRegistry()
	registry.Register(kp.KeyID, kp.PublicKey)

	err = registry.Verify(kp.KeyID, []byte("msg"), "not-base64!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}
