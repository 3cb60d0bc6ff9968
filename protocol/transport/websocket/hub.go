// Package websocket implements the WEBHOOK-edge push transport (spec.md
// §4.3, §6.1 Edge types): a persistent connection a subscriber peer opens
// once, over which this node pushes newly visible events as they queue up
// instead of waiting for the subscriber to poll. It is the push-delivery
// counterpart to the poller package's pull loop, grounded on the teacher's
// pkg/agent/transport/websocket server/client pair.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/protocol"
	"github.com/DarrenZal/koi-node/queue"
)

// DefaultPushInterval is how often the hub checks each subscriber for newly
// visible events.
const DefaultPushInterval = 5 * time.Second

// RegisterMessage is the first frame a subscriber sends after the upgrade,
// identifying itself and (optionally) the RID types it wants pushed.
type RegisterMessage struct {
	NodeRID  string   `json:"node_rid"`
	RIDTypes []string `json:"rid_types,omitempty"`
}

// PushMessage is what the hub writes down a subscriber's socket: a batch of
// events peeked (not yet delivered) from the queue.
type PushMessage struct {
	Events []protocol.WireEvent `json:"events"`
}

// eventPeeker is the subset of *queue.Queue the hub depends on. Peek (not
// Poll) is used deliberately: delivery is only recorded after the write to
// the socket actually succeeds (spec.md §4.2).
type eventPeeker interface {
	Peek(ctx context.Context, targetNode string, limit int, ridTypes []string) ([]queue.Event, error)
	MarkDelivered(ctx context.Context, eventIDs []string, targetNode string) (int, error)
}

type subscriber struct {
	conn     *websocket.Conn
	ridTypes []string
	mu       sync.Mutex // gorilla connections are not safe for concurrent writes
}

// Hub accepts persistent connections from WEBHOOK subscribers and pushes
// them their visible events on a tick, marking delivered only on a
// successful write.
type Hub struct {
	events   eventPeeker
	log      logger.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewHub builds a Hub backed by events. events is typically a *queue.Queue;
// the narrower interface keeps the hub testable without a database.
func NewHub(events eventPeeker, log logger.Logger) *Hub {
	return &Hub{
		events: events,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[string]*subscriber),
	}
}

// Handler upgrades the connection, reads the subscriber's RegisterMessage,
// and keeps it registered until the connection drops.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var reg RegisterMessage
		if err := conn.ReadJSON(&reg); err != nil || reg.NodeRID == "" {
			_ = conn.Close()
			return
		}

		h.register(reg.NodeRID, &subscriber{conn: conn, ridTypes: reg.RIDTypes})
		h.log.Info("webhook subscriber connected", logger.String("node_rid", reg.NodeRID))
		h.drainUntilClose(reg.NodeRID, conn)
	})
}

func (h *Hub) register(nodeRID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[nodeRID] = sub
}

func (h *Hub) unregister(nodeRID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, nodeRID)
}

// drainUntilClose reads (and discards) frames so the server notices a
// closed connection; subscribers send nothing after the register frame.
func (h *Hub) drainUntilClose(nodeRID string, conn *websocket.Conn) {
	defer h.unregister(nodeRID)
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Run starts the push loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.pushAll(ctx)
		}
	}
}

func (h *Hub) pushAll(ctx context.Context) {
	h.mu.RLock()
	targets := make(map[string]*subscriber, len(h.subs))
	for k, v := range h.subs {
		targets[k] = v
	}
	h.mu.RUnlock()

	for nodeRID, sub := range targets {
		h.pushOne(ctx, nodeRID, sub)
	}
}

func (h *Hub) pushOne(ctx context.Context, nodeRID string, sub *subscriber) {
	events, err := h.events.Peek(ctx, nodeRID, queue.DefaultPollLimit, sub.ridTypes)
	if err != nil {
		h.log.Warn("webhook peek failed", logger.String("node_rid", nodeRID), logger.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	wireEvents := make([]protocol.WireEvent, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		var manifest, contents map[string]any
		_ = json.Unmarshal(e.Manifest, &manifest)
		_ = json.Unmarshal(e.Contents, &contents)
		wireEvents = append(wireEvents, protocol.WireEvent{
			EventID:    e.EventID,
			EventType:  string(e.EventType),
			RID:        e.RID,
			Manifest:   manifest,
			Contents:   contents,
			SourceNode: e.SourceNode,
			QueuedAt:   e.QueuedAt,
		})
		ids = append(ids, e.EventID)
	}

	sub.mu.Lock()
	err = sub.conn.WriteJSON(PushMessage{Events: wireEvents})
	sub.mu.Unlock()
	if err != nil {
		h.log.Warn("webhook push failed", logger.String("node_rid", nodeRID), logger.Error(err))
		return
	}

	if _, err := h.events.MarkDelivered(ctx, ids, nodeRID); err != nil {
		h.log.Warn("webhook mark-delivered failed", logger.String("node_rid", nodeRID), logger.Error(err))
	}
}
