// Package resolver implements the multi-tier entity resolver (C6): exact,
// alias, fuzzy (Jaro-Winkler with a token-overlap guard), and semantic
// (embedding) resolution against the local entity_registry.
package resolver

import (
	"context"
	"time"

	"github.com/DarrenZal/koi-node/internal/metrics"
)

// Mode selects which tiers a Resolve call attempts, each mode a superset of
// the cheaper ones before it.
type Mode string

const (
	ModeExact      Mode = "exact"
	ModeExactAlias Mode = "exact_alias"
	ModeFuzzy      Mode = "fuzzy"
	ModeSemantic   Mode = "semantic"
)

// Relationship is the kind of cross-reference a resolution produces.
type Relationship string

const (
	RelationshipSameAs     Relationship = "same_as"
	RelationshipRelatedTo  Relationship = "related_to"
	RelationshipUnresolved Relationship = "unresolved"
)

// AliasCandidate is a registry row considered during the alias tier.
type AliasCandidate struct {
	URI     string
	Aliases []string
}

// FuzzyCandidate is a registry row considered during the fuzzy tier.
type FuzzyCandidate struct {
	URI            string
	NormalizedText string
}

// Store is the read-only slice of the entity_registry the resolver needs.
// Implementations back it with the shared relational store (C11).
type Store interface {
	ExactMatch(ctx context.Context, normalizedText, entityType string) (uri string, found bool, err error)
	AliasCandidates(ctx context.Context, entityType string) ([]AliasCandidate, error)
	FuzzyCandidates(ctx context.Context, entityType string) ([]FuzzyCandidate, error)
	SemanticBest(ctx context.Context, entityType string, queryEmbedding []float64) (uri string, similarity float64, found bool, err error)
}

// EmbedFunc computes a query embedding for the semantic tier. A nil EmbedFunc
// causes the semantic tier to be skipped (Resolve behaves as if mode were
// ModeFuzzy for that call).
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// Result is the outcome of a Resolve call.
type Result struct {
	URI          string
	Confidence   float64
	Relationship Relationship
}

var unresolved = Result{Confidence: 0, Relationship: RelationshipUnresolved}

// Resolve attempts to match entityName against the registry, trying tiers in
// increasing cost up to mode.
func Resolve(ctx context.Context, store Store, schemas *SchemaRegistry, entityName, entityType string, mode Mode, embed EmbedFunc) (Result, error) {
	start := time.Now()
	result, tier, err := resolve(ctx, store, schemas, entityName, entityType, mode, embed)
	metrics.ResolverDuration.Observe(time.Since(start).Seconds())
	metrics.ResolverTierHits.WithLabelValues(tier).Inc()
	return result, err
}

func resolve(ctx context.Context, store Store, schemas *SchemaRegistry, entityName, entityType string, mode Mode, embed EmbedFunc) (Result, string, error) {
	normalized := NormalizeEntityText(entityName)

	// Tier 1: exact match on normalized_text.
	uri, found, err := store.ExactMatch(ctx, normalized, entityType)
	if err != nil {
		return unresolved, "error", err
	}
	if found {
		return Result{URI: uri, Confidence: 1.0, Relationship: RelationshipSameAs}, "exact", nil
	}
	if mode == ModeExact {
		return unresolved, "unresolved", nil
	}

	// Tier 1.1: alias match.
	aliasNorm := NormalizeAlias(entityName)
	candidates, err := store.AliasCandidates(ctx, entityType)
	if err != nil {
		return unresolved, "error", err
	}
	for _, c := range candidates {
		for _, a := range c.Aliases {
			if NormalizeAlias(a) == aliasNorm {
				return Result{URI: c.URI, Confidence: 1.0, Relationship: RelationshipSameAs}, "alias", nil
			}
		}
	}
	if mode == ModeExactAlias {
		return unresolved, "unresolved", nil
	}

	// Tier 2a: fuzzy (Jaro-Winkler) with token-overlap guard.
	schema := schemas.For(entityType)
	fuzzyCandidates, err := store.FuzzyCandidates(ctx, entityType)
	if err != nil {
		return unresolved, "error", err
	}

	var bestURI string
	var bestScore float64
	for _, c := range fuzzyCandidates {
		score := JaroWinklerSimilarity(normalized, c.NormalizedText)
		if score >= schema.SimilarityThreshold && score > bestScore {
			if PassesTokenOverlapGuard(normalized, c.NormalizedText, schema.RequireTokenOverlap) {
				bestScore = score
				bestURI = c.URI
			}
		}
	}
	if bestURI != "" {
		return Result{URI: bestURI, Confidence: bestScore, Relationship: RelationshipRelatedTo}, "fuzzy", nil
	}
	if mode == ModeFuzzy {
		return unresolved, "unresolved", nil
	}

	// Tier 2b: semantic (embedding) similarity.
	if embed == nil {
		return unresolved, "unresolved", nil
	}
	queryEmbedding, err := embed(ctx, normalized)
	if err != nil {
		return unresolved, "error", err
	}
	if len(queryEmbedding) == 0 {
		return unresolved, "unresolved", nil
	}

	semURI, similarity, semFound, err := store.SemanticBest(ctx, entityType, queryEmbedding)
	if err != nil {
		return unresolved, "error", err
	}
	if semFound && similarity >= schema.SemanticThreshold {
		return Result{URI: semURI, Confidence: similarity, Relationship: RelationshipRelatedTo}, "semantic", nil
	}
	return unresolved, "unresolved", nil
}
