package webmonitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Submission is one row of web_submissions.
type Submission struct {
	ID          int64
	URL         string
	Status      string
	Title       string
	Content     string
	ContentHash string
	WordCount   int
	SubmittedBy string
	FetchedAt   *time.Time
}

// Store persists web_submissions rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store bound to pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Monitored returns every URL currently in 'monitoring' status.
func (s *Store) Monitored(ctx context.Context) ([]Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, status, title, content, content_hash, word_count, submitted_by, fetched_at
		FROM web_submissions WHERE status = 'monitoring'
	`)
	if err != nil {
		return nil, fmt.Errorf("webmonitor: list monitored: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Status, &sub.Title, &sub.Content,
			&sub.ContentHash, &sub.WordCount, &sub.SubmittedBy, &sub.FetchedAt); err != nil {
			return nil, fmt.Errorf("webmonitor: scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Submit inserts or reactivates a URL for monitoring, returning its row.
func (s *Store) Submit(ctx context.Context, url, submittedBy string) (Submission, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO web_submissions (url, status, submitted_by)
		VALUES ($1, 'monitoring', $2)
		ON CONFLICT (url) DO UPDATE SET status = 'monitoring', submitted_by = EXCLUDED.submitted_by
		RETURNING id, url, status, title, content, content_hash, word_count, submitted_by, fetched_at
	`, url, submittedBy)

	var sub Submission
	if err := row.Scan(&sub.ID, &sub.URL, &sub.Status, &sub.Title, &sub.Content,
		&sub.ContentHash, &sub.WordCount, &sub.SubmittedBy, &sub.FetchedAt); err != nil {
		return Submission{}, fmt.Errorf("webmonitor: submit: %w", err)
	}
	return sub, nil
}

// RecordFetch updates a submission with the outcome of a fetch. changed
// reports whether content_hash differs from the previously stored value.
func (s *Store) RecordFetch(ctx context.Context, id int64, result FetchResult) (changed bool, err error) {
	var previousHash string
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(content_hash, '') FROM web_submissions WHERE id = $1`, id).Scan(&previousHash); err != nil && err != pgx.ErrNoRows {
		return false, fmt.Errorf("webmonitor: read previous hash: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE web_submissions
		SET title = $1, content = $2, content_hash = $3, word_count = $4, fetched_at = NOW()
		WHERE id = $5
	`, result.Title, result.Text, result.ContentHash, result.WordCount, id)
	if err != nil {
		return false, fmt.Errorf("webmonitor: record fetch: %w", err)
	}

	return previousHash != "" && previousHash != result.ContentHash, nil
}
