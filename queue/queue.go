// Package queue implements the durable, per-subscriber at-least-once event
// queue (C2): the relational-store-backed home for every NEW/UPDATE/FORGET
// event a node emits or relays.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DarrenZal/koi-node/internal/metrics"
)

// EventType is one of the three mutation kinds a queue entry can carry.
type EventType string

const (
	EventNew    EventType = "NEW"
	EventUpdate EventType = "UPDATE"
	EventForget EventType = "FORGET"
)

// Default retention windows (spec.md §3 Time invariant).
const (
	DefaultLocalTTLHours  = 24
	DefaultRemoteTTLHours = 72
	DefaultPollLimit      = 50
)

// Event is the queue's row shape, also used as the wire event body (spec.md §3, §6.1).
type Event struct {
	ID          int64           `json:"-"`
	EventID     string          `json:"event_id"`
	EventType   EventType       `json:"event_type"`
	RID         string          `json:"rid"`
	Manifest    json.RawMessage `json:"manifest,omitempty"`
	Contents    json.RawMessage `json:"contents,omitempty"`
	SourceNode  string          `json:"source_node"`
	TargetNode  *string         `json:"target_node,omitempty"`
	QueuedAt    time.Time       `json:"queued_at"`
	ExpiresAt   time.Time       `json:"-"`
	DeliveredTo []string        `json:"-"`
	ConfirmedBy []string        `json:"-"`
}

// Queue is a durable, pgx-backed event queue scoped to the owning node's RID.
type Queue struct {
	pool    *pgxpool.Pool
	nodeRID string
}

// New returns a Queue bound to pool, defaulting the event source to nodeRID
// when callers of Add don't supply one.
func New(pool *pgxpool.Pool, nodeRID string) *Queue {
	return &Queue{pool: pool, nodeRID: nodeRID}
}

// Add inserts an event. If eventID is non-empty (inbound from a peer), the
// insert is deduplicated on (source_node, event_id); a duplicate returns
// ("", true, nil). If eventID is empty (locally generated), a fresh UUID is
// assigned and always returned.
func (q *Queue) Add(ctx context.Context, eventType EventType, rid string, manifest, contents json.RawMessage, sourceNode string, ttlHours int, eventID string, targetNode *string) (string, bool, error) {
	if sourceNode == "" {
		sourceNode = q.nodeRID
	}
	if ttlHours <= 0 {
		ttlHours = DefaultLocalTTLHours
	}

	origin := "local"
	if eventID != "" {
		origin = "inbound"
	} else {
		eventID = uuid.NewString()
	}

	ttl := fmt.Sprintf("%d hours", ttlHours)

	row := q.pool.QueryRow(ctx, `
		INSERT INTO koi_net_events
			(event_id, event_type, rid, manifest, contents, source_node, target_node, expires_at)
		VALUES
			($1::UUID, $2, $3, $4, $5, $6, $7, NOW() + $8::INTERVAL)
		ON CONFLICT (source_node, event_id) WHERE event_id IS NOT NULL DO NOTHING
		RETURNING event_id::TEXT
	`, eventID, string(eventType), rid, nullableJSON(manifest), nullableJSON(contents), sourceNode, targetNode, ttl)

	var returnedID string
	if err := row.Scan(&returnedID); err != nil {
		if err == pgx.ErrNoRows {
			return "", true, nil
		}
		return "", false, fmt.Errorf("queue: add: %w", err)
	}

	metrics.EventsAdded.WithLabelValues(origin).Inc()
	return returnedID, false, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

const selectVisibleEvents = `
	SELECT id, event_id::TEXT, event_type, rid, manifest, contents, source_node, queued_at
	FROM koi_net_events
	WHERE NOT ($1 = ANY(delivered_to))
	  AND expires_at > NOW()
	  AND (target_node IS NULL OR target_node = $1)
	ORDER BY queued_at ASC
	LIMIT $2
`

func (q *Queue) selectVisible(ctx context.Context, node string, limit int, ridTypes []string) ([]Event, []int64, error) {
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	rows, err := q.pool.Query(ctx, selectVisibleEvents, node, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: select: %w", err)
	}
	defer rows.Close()

	var events []Event
	var ids []int64
	for rows.Next() {
		var e Event
		var manifest, contents []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.RID, &manifest, &contents, &e.SourceNode, &e.QueuedAt); err != nil {
			return nil, nil, fmt.Errorf("queue: scan: %w", err)
		}
		if len(ridTypes) > 0 {
			t, ok := ExtractRIDType(e.RID)
			if ok && !contains(ridTypes, t) {
				continue
			}
		}
		e.Manifest = manifest
		e.Contents = contents
		events = append(events, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("queue: rows: %w", err)
	}
	return events, ids, nil
}

// Poll atomically selects visible events for requestingNode, up to limit,
// and marks them delivered to that node before returning them.
func (q *Queue) Poll(ctx context.Context, requestingNode string, limit int, ridTypes []string) ([]Event, error) {
	events, ids, err := q.selectVisible(ctx, requestingNode, limit, ridTypes)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return events, nil
	}

	if _, err := q.pool.Exec(ctx, `
		UPDATE koi_net_events
		SET delivered_to = array_append(delivered_to, $1)
		WHERE id = ANY($2)
	`, requestingNode, ids); err != nil {
		return nil, fmt.Errorf("queue: mark delivered in poll: %w", err)
	}

	metrics.EventsPolled.Add(float64(len(events)))
	return events, nil
}

// Peek returns the same selection as Poll without marking delivery. Used by
// WEBHOOK push transport, which marks delivered only after a successful send.
func (q *Queue) Peek(ctx context.Context, targetNode string, limit int, ridTypes []string) ([]Event, error) {
	events, _, err := q.selectVisible(ctx, targetNode, limit, ridTypes)
	return events, err
}

// MarkDelivered idempotently appends targetNode to delivered_to for the
// given event IDs, returning the count actually transitioned.
func (q *Queue) MarkDelivered(ctx context.Context, eventIDs []string, targetNode string) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	tag, err := q.pool.Exec(ctx, `
		UPDATE koi_net_events
		SET delivered_to = array_append(delivered_to, $1)
		WHERE event_id::TEXT = ANY($2)
		  AND NOT ($1 = ANY(delivered_to))
		  AND expires_at > NOW()
	`, targetNode, eventIDs)
	if err != nil {
		return 0, fmt.Errorf("queue: mark delivered: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Confirm idempotently appends confirmingNode to confirmed_by for the given
// event IDs, returning the count actually transitioned.
func (q *Queue) Confirm(ctx context.Context, eventIDs []string, confirmingNode string) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	tag, err := q.pool.Exec(ctx, `
		UPDATE koi_net_events
		SET confirmed_by = array_append(confirmed_by, $1)
		WHERE event_id::TEXT = ANY($2)
		  AND NOT ($1 = ANY(confirmed_by))
	`, confirmingNode, eventIDs)
	if err != nil {
		return 0, fmt.Errorf("queue: confirm: %w", err)
	}
	count := int(tag.RowsAffected())
	metrics.EventsConfirmed.Add(float64(count))
	return count, nil
}

// Cleanup deletes expired events, returning the count removed.
func (q *Queue) Cleanup(ctx context.Context) (int, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM koi_net_events WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("queue: cleanup: %w", err)
	}
	count := int(tag.RowsAffected())
	metrics.EventsExpired.Add(float64(count))
	return count, nil
}

// Size returns the count of active (non-expired) events, exposed as
// event_queue_size in /koi-net/health and via metrics.QueueDepth.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var count int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM koi_net_events WHERE expires_at > NOW()`).Scan(&count); err != nil {
		return 0, fmt.Errorf("queue: size: %w", err)
	}
	metrics.QueueDepth.Set(float64(count))
	return count, nil
}

// LookupManifest returns the manifest and contents of the most recent
// non-expired event recorded for rid, used by manifests/fetch and
// bundles/fetch. found is false when no such event exists.
func (q *Queue) LookupManifest(ctx context.Context, rid string) (manifest, contents map[string]any, found bool, err error) {
	var manifestRaw, contentsRaw []byte
	row := q.pool.QueryRow(ctx, `
		SELECT manifest, contents FROM koi_net_events
		WHERE rid = $1 AND expires_at > NOW()
		ORDER BY queued_at DESC
		LIMIT 1
	`, rid)
	if err := row.Scan(&manifestRaw, &contentsRaw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("queue: lookup manifest: %w", err)
	}
	if len(manifestRaw) > 0 {
		if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
			return nil, nil, false, fmt.Errorf("queue: unmarshal manifest: %w", err)
		}
	}
	if len(contentsRaw) > 0 {
		if err := json.Unmarshal(contentsRaw, &contents); err != nil {
			return nil, nil, false, fmt.Errorf("queue: unmarshal contents: %w", err)
		}
	}
	return manifest, contents, true, nil
}

// KnownRIDs enumerates the distinct RIDs this node currently holds
// non-expired events for, optionally filtered to the given rid types.
func (q *Queue) KnownRIDs(ctx context.Context, ridTypes []string) ([]string, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT DISTINCT rid FROM koi_net_events WHERE expires_at > NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("queue: known rids: %w", err)
	}
	defer rows.Close()

	var rids []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("queue: scan rid: %w", err)
		}
		if len(ridTypes) > 0 {
			t, ok := ExtractRIDType(rid)
			if !ok || !contains(ridTypes, t) {
				continue
			}
		}
		rids = append(rids, rid)
	}
	return rids, rows.Err()
}

// ExtractRIDType parses the entity-type segment out of an RID of the form
// `orn:koi-net.{type}:{slug}+{hash}` or `orn:entity:{type}/{slug}+{hash}`,
// title-casing the result. It reports false if rid matches neither form.
func ExtractRIDType(rid string) (string, bool) {
	if idx := strings.Index(rid, "koi-net."); idx >= 0 {
		rest := rid[idx+len("koi-net."):]
		t, _, ok := strings.Cut(rest, ":")
		if !ok || t == "" {
			return "", false
		}
		return titleCase(t), true
	}
	if idx := strings.Index(rid, "entity:"); idx >= 0 {
		rest := rid[idx+len("entity:"):]
		t, _, ok := strings.Cut(rest, "/")
		if !ok || t == "" {
			return "", false
		}
		return titleCase(t), true
	}
	return "", false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
