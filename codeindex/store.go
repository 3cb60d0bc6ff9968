package codeindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists codeindex's relational rows: active repos, per-file
// change-detection state, and the flattened code_artifacts/code_edges
// tables that mirror the graph loaded by graphloader.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store bound to pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ActiveRepos returns every github_repos row with status = 'active'.
func (s *Store) ActiveRepos(ctx context.Context) ([]Repo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, repo_name, clone_url, branch, status FROM github_repos WHERE status = 'active'
	`)
	if err != nil {
		return nil, fmt.Errorf("codeindex: active repos: %w", err)
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.ID, &r.RepoName, &r.CloneURL, &r.Branch, &r.Status); err != nil {
			return nil, fmt.Errorf("codeindex: scan repo: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// ExistingHashes returns the repo's known file_path -> content_hash map for
// change detection.
func (s *Store) ExistingHashes(ctx context.Context, repoID int64) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_path, content_hash FROM github_file_state WHERE repo_id = $1
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("codeindex: existing hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("codeindex: scan hash: %w", err)
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// UpsertCodeArtifacts writes one row per entity, overwriting any prior
// extraction for the same code_uri. Matches _store_code_artifacts's upsert
// shape, extended with the extra columns SPEC_FULL.md's data model needs.
func (s *Store) UpsertCodeArtifacts(ctx context.Context, entities []CodeEntity, commitSHA, runID string) error {
	for _, e := range entities {
		codeURI := fmt.Sprintf("code:%s:%s:%s", e.Repo, e.FilePath, e.Name)
		_, err := s.pool.Exec(ctx, `
			INSERT INTO code_artifacts
				(code_uri, repo_name, file_path, symbol, entity_id, entity_type, language,
				 signature, docstring, params, return_type, receiver_type,
				 extraction_method, extraction_run_id, line_start, line_end, commit_sha, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW())
			ON CONFLICT (code_uri) DO UPDATE SET
				entity_id=EXCLUDED.entity_id, entity_type=EXCLUDED.entity_type,
				language=EXCLUDED.language, signature=EXCLUDED.signature,
				docstring=EXCLUDED.docstring, params=EXCLUDED.params,
				return_type=EXCLUDED.return_type, receiver_type=EXCLUDED.receiver_type,
				extraction_method=EXCLUDED.extraction_method, extraction_run_id=EXCLUDED.extraction_run_id,
				line_start=EXCLUDED.line_start, line_end=EXCLUDED.line_end,
				commit_sha=EXCLUDED.commit_sha, updated_at=NOW()
		`,
			codeURI, e.Repo, e.FilePath, e.Name, e.EntityID, e.EntityType, e.Language,
			truncate(e.Signature, 500), truncate(e.Docstring, 500), e.Params, e.ReturnType, e.ReceiverType,
			e.ExtractionMode, runID, e.LineStart, e.LineEnd, commitSHA,
		)
		if err != nil {
			return fmt.Errorf("codeindex: upsert code artifact %s: %w", codeURI, err)
		}
	}
	return nil
}

// UpsertCodeEdges writes one row per edge, matching graphloader's flattened
// relational mirror of the property graph.
func (s *Store) UpsertCodeEdges(ctx context.Context, edges []CodeEdge, repo, runID string) error {
	for _, e := range edges {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO code_edges
				(edge_id, from_entity_id, to_entity_id, edge_type, file_path, line_number, repo_name, extraction_run_id, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
			ON CONFLICT (edge_id) DO UPDATE SET
				extraction_run_id=EXCLUDED.extraction_run_id, updated_at=NOW()
		`, e.EdgeID, e.FromEntityID, e.ToEntityID, e.EdgeType, e.FilePath, e.LineNumber, repo, runID)
		if err != nil {
			return fmt.Errorf("codeindex: upsert code edge %s: %w", e.EdgeID, err)
		}
	}
	return nil
}

// UpsertFileState records the per-file change-detection row for repoID,
// including the captured git metadata as JSONB.
func (s *Store) UpsertFileState(ctx context.Context, repoID int64, fr FileResult) error {
	meta, err := json.Marshal(fr.GitMeta)
	if err != nil {
		return fmt.Errorf("codeindex: marshal git meta: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO github_file_state
			(repo_id, file_path, content_hash, byte_size, line_count, last_commit, entity_count, scanned_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (repo_id, file_path) DO UPDATE SET
			content_hash=EXCLUDED.content_hash, byte_size=EXCLUDED.byte_size,
			line_count=EXCLUDED.line_count, last_commit=EXCLUDED.last_commit,
			entity_count=EXCLUDED.entity_count, scanned_at=NOW()
	`, repoID, fr.RelPath, fr.ContentHash, fr.ByteSize, fr.LineCount, meta, fr.EntityCount)
	if err != nil {
		return fmt.Errorf("codeindex: upsert file state: %w", err)
	}
	return nil
}

// MarkRepoError records a scan failure against the repo row, matching the
// original's status='error' transition.
func (s *Store) MarkRepoError(ctx context.Context, repoID int64, msg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE github_repos SET status='error', error_message=$1 WHERE id=$2
	`, truncate(msg, 500), repoID)
	if err != nil {
		return fmt.Errorf("codeindex: mark repo error: %w", err)
	}
	return nil
}

// MarkRepoScanned records a successful scan's HEAD SHA and timestamp.
func (s *Store) MarkRepoScanned(ctx context.Context, repoID int64, headSHA string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE github_repos
		SET status='active', error_message=NULL, last_commit=$1, last_scanned_at=NOW()
		WHERE id=$2
	`, headSHA, repoID)
	if err != nil {
		return fmt.Errorf("codeindex: mark repo scanned: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
