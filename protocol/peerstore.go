package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DarrenZal/koi-node/identity"
)

// PeerStore persists peer NodeProfiles and the edges negotiated with them.
type PeerStore struct {
	pool *pgxpool.Pool
}

// NewPeerStore wraps pool for peer/edge persistence.
func NewPeerStore(pool *pgxpool.Pool) *PeerStore {
	return &PeerStore{pool: pool}
}

// Upsert stores or refreshes a peer's NodeProfile.
func (s *PeerStore) Upsert(ctx context.Context, profile identity.NodeProfile) error {
	provides, err := json.Marshal(profile.Provides)
	if err != nil {
		return fmt.Errorf("protocol: marshal provides: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO koi_net_nodes (node_rid, node_name, node_type, base_url, provides, public_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (node_rid) DO UPDATE SET
			node_name = EXCLUDED.node_name,
			node_type = EXCLUDED.node_type,
			base_url = EXCLUDED.base_url,
			provides = EXCLUDED.provides,
			public_key = EXCLUDED.public_key,
			updated_at = NOW()
	`, profile.NodeRID, profile.NodeName, string(profile.NodeType), profile.BaseURL, provides, profile.PublicKey)
	if err != nil {
		return fmt.Errorf("protocol: upsert peer: %w", err)
	}
	return nil
}

// Get returns the profile stored for nodeRID, or (nil, nil) if unknown.
func (s *PeerStore) Get(ctx context.Context, nodeRID string) (*identity.NodeProfile, error) {
	var profile identity.NodeProfile
	var nodeType string
	var providesRaw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT node_rid, node_name, node_type, COALESCE(base_url, ''), provides, public_key
		FROM koi_net_nodes WHERE node_rid = $1
	`, nodeRID).Scan(&profile.NodeRID, &profile.NodeName, &nodeType, &profile.BaseURL, &providesRaw, &profile.PublicKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("protocol: get peer: %w", err)
	}
	profile.NodeType = identity.NodeType(nodeType)
	if len(providesRaw) > 0 {
		if err := json.Unmarshal(providesRaw, &profile.Provides); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal provides: %w", err)
		}
	}
	return &profile, nil
}

// PublicKeyFor looks up the DER-base64 public key registered for nodeRID,
// used to verify envelopes claiming to come from that node.
func (s *PeerStore) PublicKeyFor(ctx context.Context, nodeRID string) (string, bool, error) {
	profile, err := s.Get(ctx, nodeRID)
	if err != nil {
		return "", false, err
	}
	if profile == nil {
		return "", false, nil
	}
	return profile.PublicKey, true, nil
}

// EnsureEdge records that source accepts delivery from/to target over
// edgeType, approved by default; converging edges (both directions
// handshaked) are the caller's responsibility to detect.
func (s *PeerStore) EnsureEdge(ctx context.Context, source, target string, edgeType EdgeType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO koi_net_edges (source_node, target_node, edge_type, status)
		VALUES ($1, $2, $3, 'APPROVED')
		ON CONFLICT (source_node, target_node, edge_type) DO NOTHING
	`, source, target, string(edgeType))
	if err != nil {
		return fmt.Errorf("protocol: ensure edge: %w", err)
	}
	return nil
}

// EdgesFor returns every approved edge this node offers to target.
func (s *PeerStore) EdgesFor(ctx context.Context, source, target string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_node, target_node, edge_type, status FROM koi_net_edges
		WHERE source_node = $1 AND target_node = $2 AND status = 'APPROVED'
	`, source, target)
	if err != nil {
		return nil, fmt.Errorf("protocol: edges for: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var edgeType, status string
		if err := rows.Scan(&e.Source, &e.Target, &edgeType, &status); err != nil {
			return nil, fmt.Errorf("protocol: scan edge: %w", err)
		}
		e.Type = EdgeType(edgeType)
		e.Status = EdgeStatus(status)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// PollEdgesTo returns every approved POLL edge where selfRID is the target,
// i.e. the peers this node should poll for events.
func (s *PeerStore) PollEdgesTo(ctx context.Context, selfRID string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_node, target_node, edge_type, status FROM koi_net_edges
		WHERE target_node = $1 AND edge_type = 'POLL' AND status = 'APPROVED'
	`, selfRID)
	if err != nil {
		return nil, fmt.Errorf("protocol: poll edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var edgeType, status string
		if err := rows.Scan(&e.Source, &e.Target, &edgeType, &status); err != nil {
			return nil, fmt.Errorf("protocol: scan poll edge: %w", err)
		}
		e.Type = EdgeType(edgeType)
		e.Status = EdgeStatus(status)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Peers lists every peer node_rid this node knows about.
func (s *PeerStore) Peers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT node_rid FROM koi_net_nodes`)
	if err != nil {
		return nil, fmt.Errorf("protocol: peers: %w", err)
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("protocol: scan peer: %w", err)
		}
		peers = append(peers, rid)
	}
	return peers, rows.Err()
}
