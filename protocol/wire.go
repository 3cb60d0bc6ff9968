// Package protocol implements the protocol router (C3): the inbound HTTP
// surface peers use for handshake, event exchange, and manifest/bundle
// lookups, plus the common envelope-verification steps every endpoint
// shares.
package protocol

import (
	"time"

	"github.com/DarrenZal/koi-node/identity"
)

// WireEvent is the over-the-wire shape of a queue event (spec.md §6.1).
type WireEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	RID        string         `json:"rid"`
	Manifest   map[string]any `json:"manifest,omitempty"`
	Contents   map[string]any `json:"contents,omitempty"`
	SourceNode string         `json:"source_node"`
	QueuedAt   time.Time      `json:"queued_at"`
}

// WireManifest is the manifest half of a bundle, returned without contents.
type WireManifest struct {
	RID        string         `json:"rid"`
	Manifest   map[string]any `json:"manifest"`
	SHA256Hash string         `json:"sha256_hash"`
}

// Bundle is a manifest plus its contents.
type Bundle struct {
	RID      string         `json:"rid"`
	Manifest map[string]any `json:"manifest"`
	Contents map[string]any `json:"contents,omitempty"`
}

// EdgeType is the kind of delivery a peer edge uses.
type EdgeType string

const (
	EdgePoll    EdgeType = "POLL"
	EdgeWebhook EdgeType = "WEBHOOK"
)

// EdgeStatus is the approval state of a peer edge.
type EdgeStatus string

const (
	EdgeApproved EdgeStatus = "APPROVED"
	EdgePending  EdgeStatus = "PENDING"
)

// Edge is a directed delivery agreement between two nodes.
type Edge struct {
	Source string     `json:"source"`
	Target string     `json:"target"`
	Type   EdgeType   `json:"type"`
	Status EdgeStatus `json:"status"`
}

// Handshake request/response payloads.
type HandshakeRequest struct {
	Type    string               `json:"type"`
	Profile identity.NodeProfile `json:"profile"`
}

type HandshakeResponse struct {
	Accepted bool                 `json:"accepted"`
	Profile  identity.NodeProfile `json:"profile"`
	Edges    []Edge               `json:"edges"`
}

// Broadcast request/response payloads.
type BroadcastRequest struct {
	Type   string      `json:"type"`
	Events []WireEvent `json:"events"`
}

type BroadcastResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// Poll request/response payloads.
type PollRequest struct {
	Type     string   `json:"type"`
	Limit    int      `json:"limit,omitempty"`
	RIDTypes []string `json:"rid_types,omitempty"`
}

type PollResponse struct {
	Events []WireEvent `json:"events"`
}

// Confirm request/response payloads.
type ConfirmRequest struct {
	Type     string   `json:"type"`
	EventIDs []string `json:"event_ids"`
}

type ConfirmResponse struct {
	Confirmed int `json:"confirmed"`
}

// FetchManifests request/response payloads.
type FetchManifestsRequest struct {
	Type string   `json:"type"`
	RIDs []string `json:"rids"`
}

type FetchManifestsResponse struct {
	Manifests []WireManifest `json:"manifests"`
	NotFound  []string       `json:"not_found"`
}

// FetchBundles request/response payloads.
type FetchBundlesRequest struct {
	Type string   `json:"type"`
	RIDs []string `json:"rids"`
}

type FetchBundlesResponse struct {
	Bundles  []Bundle `json:"bundles"`
	NotFound []string `json:"not_found"`
}

// FetchRIDs request/response payloads.
type FetchRIDsRequest struct {
	Type     string   `json:"type"`
	RIDTypes []string `json:"rid_types,omitempty"`
}

type FetchRIDsResponse struct {
	RIDs []string `json:"rids"`
}

// HealthResponse is returned by GET /koi-net/health.
type HealthResponse struct {
	Node           identity.NodeProfile `json:"node"`
	EventQueueSize int                  `json:"event_queue_size"`
	Peers          []string             `json:"peers"`
}
