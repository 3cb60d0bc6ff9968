package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEntityText(t *testing.T) {
	assert.Equal(t, "jane smith", NormalizeEntityText("  Jane   Smith  "))
	assert.Equal(t, "jane smith", NormalizeEntityText("JANE SMITH"))
}

func TestNormalizeAlias(t *testing.T) {
	assert.Equal(t, "jane smith", NormalizeAlias("[[Jane Smith|JS]]"))
	assert.Equal(t, "jane smith", NormalizeAlias("[[Jane Smith]]"))
	assert.Equal(t, "jane smith", NormalizeAlias("people/Jane Smith"))
	assert.Equal(t, "jane smith", NormalizeAlias("Jane Smith"))
}

func TestJaroWinklerSimilarityIdentical(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinklerSimilarity("martha", "martha"))
}

func TestJaroWinklerSimilarityDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, JaroWinklerSimilarity("abc", "xyz"))
}

func TestJaroWinklerSimilarityEmpty(t *testing.T) {
	assert.Equal(t, 0.0, JaroWinklerSimilarity("", "martha"))
	assert.Equal(t, 0.0, JaroWinklerSimilarity("martha", ""))
}

func TestJaroWinklerSimilarityKnownPair(t *testing.T) {
	// classic reference pair: plain Jaro is ~0.767 and the two-character
	// prefix bonus lifts Jaro-Winkler to ~0.813.
	score := JaroWinklerSimilarity("dixon", "dicksonx")
	assert.Greater(t, score, 0.8)
	assert.LessOrEqual(t, score, 1.0)
}

func TestComputeTokenOverlap(t *testing.T) {
	ratio, count := ComputeTokenOverlap("jane smith", "jane smith jr")
	assert.Equal(t, 1.0, ratio)
	assert.Equal(t, 2, count)

	ratio, count = ComputeTokenOverlap("jane smith", "jane doe")
	assert.Equal(t, 0.5, ratio)
	assert.Equal(t, 1, count)
}

func TestPassesTokenOverlapGuardSingleTokenBypass(t *testing.T) {
	assert.True(t, PassesTokenOverlapGuard("martha", "marthaa", true))
}

func TestPassesTokenOverlapGuardRejectsSharedFirstNameOnly(t *testing.T) {
	// "Jane Smith" vs "Jane Doe" share only one token out of two -- the
	// ratio (0.5) clears its minimum but the count (1 < 2) does not, and
	// both must clear for the guard to pass.
	assert.False(t, PassesTokenOverlapGuard("jane smith", "jane doe", true))
}

func TestPassesTokenOverlapGuardAcceptsStrongOverlap(t *testing.T) {
	assert.True(t, PassesTokenOverlapGuard("jane smith jr", "jane smith sr", true))
}

func TestPassesTokenOverlapGuardDisabledAlwaysPasses(t *testing.T) {
	assert.True(t, PassesTokenOverlapGuard("jane smith", "john doe", false))
}

func TestSchemaRegistryFallsBackToDefault(t *testing.T) {
	reg := NewSchemaRegistry(map[string]Schema{
		"person": {SimilarityThreshold: 0.9, SemanticThreshold: 0.85, RequireTokenOverlap: false},
	})
	assert.Equal(t, 0.9, reg.For("person").SimilarityThreshold)
	assert.Equal(t, DefaultSchema, reg.For("organization"))
}

func TestSchemaRegistryNilReceiver(t *testing.T) {
	var reg *SchemaRegistry
	assert.Equal(t, DefaultSchema, reg.For("person"))
}
