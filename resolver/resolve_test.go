package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	exact    map[string]string
	aliases  []AliasCandidate
	fuzzy    []FuzzyCandidate
	semURI   string
	semScore float64
	semFound bool
}

func (f *fakeStore) ExactMatch(_ context.Context, normalizedText, _ string) (string, bool, error) {
	uri, ok := f.exact[normalizedText]
	return uri, ok, nil
}

func (f *fakeStore) AliasCandidates(_ context.Context, _ string) ([]AliasCandidate, error) {
	return f.aliases, nil
}

func (f *fakeStore) FuzzyCandidates(_ context.Context, _ string) ([]FuzzyCandidate, error) {
	return f.fuzzy, nil
}

func (f *fakeStore) SemanticBest(_ context.Context, _ string, _ []float64) (string, float64, bool, error) {
	return f.semURI, f.semScore, f.semFound, nil
}

func TestResolveExactTierShortCircuits(t *testing.T) {
	store := &fakeStore{exact: map[string]string{"jane smith": "urn:people/jane-smith"}}
	result, err := Resolve(context.Background(), store, nil, "Jane Smith", "person", ModeSemantic, nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:people/jane-smith", result.URI)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, RelationshipSameAs, result.Relationship)
}

func TestResolveAliasTier(t *testing.T) {
	store := &fakeStore{
		exact:   map[string]string{},
		aliases: []AliasCandidate{{URI: "urn:people/jane-smith", Aliases: []string{"[[Jane Smith|JS]]"}}},
	}
	result, err := Resolve(context.Background(), store, nil, "js", "person", ModeSemantic, nil)
	require.NoError(t, err)
	assert.Equal(t, unresolved, result)

	result, err = Resolve(context.Background(), store, nil, "Jane Smith", "person", ModeSemantic, nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:people/jane-smith", result.URI)
}

func TestResolveFuzzyTierRespectsTokenOverlapGuard(t *testing.T) {
	store := &fakeStore{
		exact: map[string]string{},
		fuzzy: []FuzzyCandidate{{URI: "urn:people/jane-smithson", NormalizedText: "jane smithson"}},
	}
	// "jane smith" vs "jane smithson" clears the 0.85 Jaro-Winkler threshold
	// (about 0.95) but shares only one token -- the guard should block the match.
	result, err := Resolve(context.Background(), store, nil, "Jane Smith", "person", ModeFuzzy, nil)
	require.NoError(t, err)
	assert.Equal(t, unresolved, result)
}

func TestResolveFuzzyTierMatchesAboveThreshold(t *testing.T) {
	// Two shared tokens ("smith", "jr") clears the token-overlap guard;
	// "john"/"jon" differ by a single dropped letter, enough for
	// Jaro-Winkler to clear the 0.85 default similarity threshold.
	store := &fakeStore{
		exact: map[string]string{},
		fuzzy: []FuzzyCandidate{{URI: "urn:people/jon-smith-jr", NormalizedText: "jon smith jr"}},
	}
	result, err := Resolve(context.Background(), store, nil, "John Smith Jr", "person", ModeFuzzy, nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:people/jon-smith-jr", result.URI)
	assert.Equal(t, RelationshipRelatedTo, result.Relationship)
}

func TestResolveStopsAtRequestedMode(t *testing.T) {
	store := &fakeStore{
		exact: map[string]string{},
		fuzzy: []FuzzyCandidate{{URI: "urn:people/jon-smith-jr", NormalizedText: "jon smith jr"}},
	}
	result, err := Resolve(context.Background(), store, nil, "John Smith Jr", "person", ModeExactAlias, nil)
	require.NoError(t, err)
	assert.Equal(t, unresolved, result)
}

func TestResolveSemanticTierRequiresEmbedFunc(t *testing.T) {
	store := &fakeStore{exact: map[string]string{}, semURI: "urn:people/jane-smith", semScore: 0.95, semFound: true}
	result, err := Resolve(context.Background(), store, nil, "Jane S", "person", ModeSemantic, nil)
	require.NoError(t, err)
	assert.Equal(t, unresolved, result)
}

func TestResolveSemanticTierBelowThresholdStaysUnresolved(t *testing.T) {
	store := &fakeStore{exact: map[string]string{}, semURI: "urn:people/jane-smith", semScore: 0.5, semFound: true}
	embed := func(_ context.Context, _ string) ([]float64, error) { return []float64{0.1, 0.2}, nil }
	result, err := Resolve(context.Background(), store, nil, "Jane S", "person", ModeSemantic, embed)
	require.NoError(t, err)
	assert.Equal(t, unresolved, result)
}

func TestResolveSemanticTierMatch(t *testing.T) {
	store := &fakeStore{exact: map[string]string{}, semURI: "urn:people/jane-smith", semScore: 0.9, semFound: true}
	embed := func(_ context.Context, _ string) ([]float64, error) { return []float64{0.1, 0.2}, nil }
	result, err := Resolve(context.Background(), store, nil, "Jane S", "person", ModeSemantic, embed)
	require.NoError(t, err)
	assert.Equal(t, "urn:people/jane-smith", result.URI)
	assert.Equal(t, RelationshipRelatedTo, result.Relationship)
}
