// Package poller implements the peer poller (C4): a single long-lived
// background task that periodically pulls events from every peer this node
// has a POLL edge to, feeds them through the knowledge pipeline, and
// confirms the ones it successfully processed.
package poller

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DarrenZal/koi-node/identity"
	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/internal/metrics"
	"github.com/DarrenZal/koi-node/pipeline"
	"github.com/DarrenZal/koi-node/protocol"
)

// DefaultPollInterval matches KOI_POLL_INTERVAL's default (spec.md §6.3).
const DefaultPollInterval = 60 * time.Second

// maxBackoffFailures is the consecutive-failure count above which a peer is
// skipped for the tick entirely (spec.md §4.4).
const maxBackoffFailures = 3

// peerLister is the subset of *protocol.PeerStore the poller depends on.
type peerLister interface {
	PollEdgesTo(ctx context.Context, selfRID string) ([]protocol.Edge, error)
	Get(ctx context.Context, nodeRID string) (*identity.NodeProfile, error)
}

// poster is the subset of *protocol.Client the poller depends on.
type poster interface {
	Post(ctx context.Context, baseURL, path, targetNode string, payload, out any) error
}

// Poller runs the background polling loop.
type Poller struct {
	peers        peerLister
	client       poster
	nodeRID      string
	pollInterval time.Duration
	pipe         *pipeline.Pipeline
	log          logger.Logger

	mu       sync.Mutex
	backoff  map[string]int
	lastBeat time.Time
}

// New builds a Poller. priv may be nil for a node without a signing key.
func New(peers *protocol.PeerStore, nodeRID string, priv *ecdsa.PrivateKey, pollInterval time.Duration, pipe *pipeline.Pipeline, log logger.Logger) *Poller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Poller{
		peers:        peers,
		client:       protocol.NewClient(nodeRID, priv, 30*time.Second),
		nodeRID:      nodeRID,
		pollInterval: pollInterval,
		pipe:         pipe,
		log:          log,
		backoff:      make(map[string]int),
	}
}

// LastBeat reports the time the poller last completed a full tick, used by
// health.TaskHealthCheck.
func (p *Poller) LastBeat() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastBeat
}

// Run starts the poll loop and blocks until ctx is cancelled. It never
// returns an error on a single peer's failure -- only ctx cancellation ends
// the loop (spec.md §4.4: background tasks never crash the process).
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	})
	return g.Wait()
}

func (p *Poller) tick(ctx context.Context) {
	edges, err := p.peers.PollEdgesTo(ctx, p.nodeRID)
	if err != nil {
		p.log.Warn("poller: failed to list poll edges", logger.Error(err))
		return
	}

	for _, edge := range edges {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.pollPeer(ctx, edge.Source)
	}

	p.mu.Lock()
	p.lastBeat = time.Now()
	p.mu.Unlock()
}

func (p *Poller) failures(peer string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoff[peer]
}

func (p *Poller) recordSuccess(peer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backoff[peer] = 0
	metrics.PeerBackoff.WithLabelValues(peer).Set(0)
}

func (p *Poller) recordFailure(peer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backoff[peer]++
	metrics.PeerBackoff.WithLabelValues(peer).Set(float64(p.backoff[peer]))
}

func (p *Poller) pollPeer(ctx context.Context, peerRID string) {
	if p.failures(peerRID) > maxBackoffFailures {
		p.log.Debug("poller: skipping peer in backoff", logger.String("peer", peerRID))
		return
	}

	peer, err := p.peers.Get(ctx, peerRID)
	if err != nil || peer == nil || peer.BaseURL == "" {
		p.log.Warn("poller: no base_url for peer, skipping", logger.String("peer", peerRID))
		p.recordFailure(peerRID)
		return
	}

	var resp protocol.PollResponse
	err = p.client.Post(ctx, peer.BaseURL, "/koi-net/events/poll", peerRID,
		protocol.PollRequest{Type: "poll_events", Limit: 50}, &resp)
	if err != nil {
		p.log.Warn("poller: poll request failed", logger.String("peer", peerRID), logger.Error(err))
		p.recordFailure(peerRID)
		metrics.PollAttempts.WithLabelValues("error").Inc()
		return
	}
	metrics.PollAttempts.WithLabelValues("success").Inc()
	for _, e := range resp.Events {
		metrics.EventsReceived.WithLabelValues(e.EventType).Inc()
	}

	confirmed := p.processEvents(ctx, peerRID, resp.Events)
	if len(confirmed) > 0 {
		var confirmResp protocol.ConfirmResponse
		if err := p.client.Post(ctx, peer.BaseURL, "/koi-net/events/confirm", peerRID,
			protocol.ConfirmRequest{Type: "confirm_events", EventIDs: confirmed}, &confirmResp); err != nil {
			p.log.Warn("poller: confirm request failed", logger.String("peer", peerRID), logger.Error(err))
		}
	}

	p.recordSuccess(peerRID)
}

// processEvents runs every event through the pipeline, one transaction per
// event so a single failure can't corrupt the rest of the batch. It returns
// the event IDs that completed successfully, to be confirmed back upstream.
func (p *Poller) processEvents(ctx context.Context, peerRID string, events []protocol.WireEvent) []string {
	var confirmed []string
	for _, e := range events {
		obj := &pipeline.Object{
			RID:        e.RID,
			EventType:  e.EventType,
			Manifest:   e.Manifest,
			Contents:   e.Contents,
			SourceNode: peerRID,
			EventID:    e.EventID,
		}
		if _, err := p.pipe.Process(ctx, obj); err != nil {
			p.log.Warn("poller: pipeline failed for event", logger.String("rid", e.RID), logger.Error(err))
			continue
		}
		if e.EventID != "" {
			confirmed = append(confirmed, e.EventID)
		}
	}
	return confirmed
}
