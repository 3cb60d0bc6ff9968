package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveNodeRIDHashModes(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	legacy16, err := DeriveNodeRIDHash(&priv.PublicKey, HashLegacy16)
	require.NoError(t, err)
	assert.Len(t, legacy16, 16)

	der64, err := DeriveNodeRIDHash(&priv.PublicKey, HashDER64)
	require.NoError(t, err)
	assert.Len(t, der64, 64)

	_, err = DeriveNodeRIDHash(&priv.PublicKey, HashMode("bogus"))
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestNodeRIDMatchesPublicKey(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	legacyRID, err := DeriveNodeRID("alpha", &priv.PublicKey, HashLegacy16)
	require.NoError(t, err)
	der64RID, err := DeriveNodeRID("alpha", &priv.PublicKey, HashDER64)
	require.NoError(t, err)

	assert.True(t, NodeRIDMatchesPublicKey(legacyRID, &priv.PublicKey, true, true))
	assert.False(t, NodeRIDMatchesPublicKey(legacyRID, &priv.PublicKey, false, true), "legacy16 disallowed")
	assert.False(t, NodeRIDMatchesPublicKey(legacyRID, &other.PublicKey, true, true), "wrong key")

	assert.True(t, NodeRIDMatchesPublicKey(der64RID, &priv.PublicKey, true, true))
	assert.False(t, NodeRIDMatchesPublicKey(der64RID, &priv.PublicKey, true, false), "der64 disallowed")

	assert.False(t, NodeRIDMatchesPublicKey("orn:koi-net.node:alpha", &priv.PublicKey, true, true), "no suffix")
}

func TestLoadOrCreatePersistsKeyAndDerivesRID(t *testing.T) {
	dir := t.TempDir()

	priv1, profile1, err := LoadOrCreate(dir, "node-a", "http://localhost:8080", NodeTypeFull, nil)
	require.NoError(t, err)
	assert.Contains(t, profile1.NodeRID, "orn:koi-net.node:node-a+")
	assert.FileExists(t, filepath.Join(dir, "node-a_private_key.pem"))

	info, err := os.Stat(filepath.Join(dir, "node-a_private_key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	priv2, profile2, err := LoadOrCreate(dir, "node-a", "http://localhost:8080", NodeTypeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, profile1.NodeRID, profile2.NodeRID)
	assert.Equal(t, priv1.D, priv2.D, "reloaded key must be identical")
}

func TestSignAndVerifyEnvelopeRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{"hello": "world"})
	require.NoError(t, err)

	env, err := SignEnvelope(payload, "node-a", "node-b", priv)
	require.NoError(t, err)
	assert.True(t, env.Signed())

	gotPayload, gotSource, err := VerifyEnvelope(env, &priv.PublicKey, "node-a", "node-b")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(gotPayload))
	assert.Equal(t, "node-a", gotSource)
}

func TestVerifyEnvelopeRejectsTampering(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{"hello": "world"})
	require.NoError(t, err)

	env, err := SignEnvelope(payload, "node-a", "node-b", priv)
	require.NoError(t, err)

	_, _, err = VerifyEnvelope(env, &other.PublicKey, "", "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, _, err = VerifyEnvelope(env, &priv.PublicKey, "node-x", "")
	assert.ErrorIs(t, err, ErrSourceNodeMismatch)

	_, _, err = VerifyEnvelope(env, &priv.PublicKey, "", "node-x")
	assert.ErrorIs(t, err, ErrTargetNodeMismatch)
}
