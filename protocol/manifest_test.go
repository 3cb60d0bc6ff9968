package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalManifestHashDeterministic(t *testing.T) {
	contents := map[string]any{"b": 1, "a": "x"}
	h1 := CanonicalManifestHash("rid1", nil, contents)
	h2 := CanonicalManifestHash("rid1", nil, contents)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestCanonicalManifestHashKeyOrderIndependent(t *testing.T) {
	c1 := map[string]any{"b": 1, "a": "x"}
	c2 := map[string]any{"a": "x", "b": 1}
	assert.Equal(t, CanonicalManifestHash("rid1", nil, c1), CanonicalManifestHash("rid1", nil, c2))
}

func TestCanonicalManifestHashFallsBackToRIDAndTimestamp(t *testing.T) {
	h := CanonicalManifestHash("rid1", map[string]any{"timestamp": "2026-01-01T00:00:00Z"}, nil)
	assert.Len(t, h, 64)
}

func TestManifestHashUsesDeclaredHashWhenPresent(t *testing.T) {
	manifest := map[string]any{"sha256_hash": "deadbeef"}
	assert.Equal(t, "deadbeef", ManifestHash("rid1", manifest, nil))
}

func TestManifestHashComputesWhenAbsent(t *testing.T) {
	contents := map[string]any{"name": "test"}
	h := ManifestHash("rid1", nil, contents)
	assert.Equal(t, CanonicalManifestHash("rid1", nil, contents), h)
}

func TestErrorTaxonomyStatusCodes(t *testing.T) {
	assert.Equal(t, 400, ErrInvalidPayload("x").Status)
	assert.Equal(t, 401, ErrInvalidSignature("x").Status)
	assert.Equal(t, 401, ErrUnsignedEnvelopeRequired("x").Status)
	assert.Equal(t, 401, ErrSourceNodeMismatch("x").Status)
	assert.Equal(t, 401, ErrTargetNodeMismatch("x").Status)
	assert.Equal(t, 401, ErrSourceKeyRIDMismatch("x").Status)
	assert.Equal(t, 400, ErrUnknownEndpoint("x").Status)
}
