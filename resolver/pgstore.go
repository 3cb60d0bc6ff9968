package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store against the shared entity_registry table via pgx.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ExactMatch(ctx context.Context, normalizedText, entityType string) (string, bool, error) {
	var uri string
	err := s.pool.QueryRow(ctx, `
		SELECT fuseki_uri FROM entity_registry
		WHERE normalized_text = $1 AND entity_type = $2
	`, normalizedText, entityType).Scan(&uri)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolver: exact match: %w", err)
	}
	return uri, true, nil
}

func (s *PGStore) AliasCandidates(ctx context.Context, entityType string) ([]AliasCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fuseki_uri, aliases FROM entity_registry
		WHERE entity_type = $1 AND aliases IS NOT NULL
	`, entityType)
	if err != nil {
		return nil, fmt.Errorf("resolver: alias candidates: %w", err)
	}
	defer rows.Close()

	var out []AliasCandidate
	for rows.Next() {
		var uri string
		var raw []byte
		if err := rows.Scan(&uri, &raw); err != nil {
			return nil, fmt.Errorf("resolver: scan alias row: %w", err)
		}
		var aliases []string
		if err := json.Unmarshal(raw, &aliases); err != nil {
			// aliases stored as a single JSON string rather than an array.
			var single string
			if err2 := json.Unmarshal(raw, &single); err2 == nil {
				aliases = []string{single}
			} else {
				continue
			}
		}
		out = append(out, AliasCandidate{URI: uri, Aliases: aliases})
	}
	return out, rows.Err()
}

func (s *PGStore) FuzzyCandidates(ctx context.Context, entityType string) ([]FuzzyCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fuseki_uri, normalized_text FROM entity_registry
		WHERE entity_type = $1
	`, entityType)
	if err != nil {
		return nil, fmt.Errorf("resolver: fuzzy candidates: %w", err)
	}
	defer rows.Close()

	var out []FuzzyCandidate
	for rows.Next() {
		var c FuzzyCandidate
		if err := rows.Scan(&c.URI, &c.NormalizedText); err != nil {
			return nil, fmt.Errorf("resolver: scan fuzzy row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) SemanticBest(ctx context.Context, entityType string, queryEmbedding []float64) (string, float64, bool, error) {
	// entity_registry.embedding is a plain float8[] column (no vector
	// extension assumed); cosine similarity is computed in Go over the
	// candidate rows rather than pushed into SQL via a pgvector operator.
	rows, err := s.pool.Query(ctx, `
		SELECT fuseki_uri, embedding FROM entity_registry
		WHERE entity_type = $1 AND embedding IS NOT NULL
	`, entityType)
	if err != nil {
		return "", 0, false, fmt.Errorf("resolver: semantic candidates: %w", err)
	}
	defer rows.Close()

	var bestURI string
	var bestSim float64
	found := false
	for rows.Next() {
		var uri string
		var embedding []float64
		if err := rows.Scan(&uri, &embedding); err != nil {
			return "", 0, false, fmt.Errorf("resolver: scan semantic row: %w", err)
		}
		sim := cosineSimilarity(queryEmbedding, embedding)
		if !found || sim > bestSim {
			found = true
			bestSim = sim
			bestURI = uri
		}
	}
	if err := rows.Err(); err != nil {
		return "", 0, false, err
	}
	return bestURI, bestSim, found, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
