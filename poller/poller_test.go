package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarrenZal/koi-node/identity"
	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/pipeline"
	"github.com/DarrenZal/koi-node/protocol"
)

func testLogger() logger.Logger {
	return logger.NewLogger(io.Discard, logger.ErrorLevel)
}

func emptyPipe() *pipeline.Pipeline {
	return pipeline.New(&pipeline.Context{}, nil, testLogger())
}

type fakePeers struct {
	edges   []protocol.Edge
	edgeErr error
	nodes   map[string]*identity.NodeProfile
}

func (f *fakePeers) PollEdgesTo(ctx context.Context, selfRID string) ([]protocol.Edge, error) {
	return f.edges, f.edgeErr
}

func (f *fakePeers) Get(ctx context.Context, nodeRID string) (*identity.NodeProfile, error) {
	if p, ok := f.nodes[nodeRID]; ok {
		return p, nil
	}
	return nil, nil
}

type call struct {
	path    string
	payload any
}

type fakePoster struct {
	mu      sync.Mutex
	calls   []call
	pollErr error
	events  []protocol.WireEvent
}

func (f *fakePoster) Post(ctx context.Context, baseURL, path, targetNode string, payload, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{path: path, payload: payload})
	f.mu.Unlock()

	switch path {
	case "/koi-net/events/poll":
		if f.pollErr != nil {
			return f.pollErr
		}
		resp := out.(*protocol.PollResponse)
		resp.Events = f.events
		return nil
	case "/koi-net/events/confirm":
		resp := out.(*protocol.ConfirmResponse)
		resp.Confirmed = len(f.events)
		return nil
	}
	return nil
}

func TestPollPeerSkipsWithoutBaseURL(t *testing.T) {
	peers := &fakePeers{nodes: map[string]*identity.NodeProfile{"peerA": {NodeRID: "peerA"}}}
	poster := &fakePoster{}
	p := &Poller{peers: peers, client: poster, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{}}

	p.pollPeer(context.Background(), "peerA")

	assert.Empty(t, poster.calls)
	assert.Equal(t, 1, p.failures("peerA"))
}

func TestPollPeerSkipsWhenInBackoff(t *testing.T) {
	peers := &fakePeers{nodes: map[string]*identity.NodeProfile{"peerA": {NodeRID: "peerA", BaseURL: "http://peer"}}}
	poster := &fakePoster{}
	p := &Poller{peers: peers, client: poster, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{"peerA": maxBackoffFailures + 1}}

	p.pollPeer(context.Background(), "peerA")

	assert.Empty(t, poster.calls)
}

func TestPollPeerRecordsFailureOnPollError(t *testing.T) {
	peers := &fakePeers{nodes: map[string]*identity.NodeProfile{"peerA": {NodeRID: "peerA", BaseURL: "http://peer"}}}
	poster := &fakePoster{pollErr: errors.New("connection refused")}
	p := &Poller{peers: peers, client: poster, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{}}

	p.pollPeer(context.Background(), "peerA")

	assert.Equal(t, 1, p.failures("peerA"))
}

func TestPollPeerProcessesEventsAndConfirms(t *testing.T) {
	peers := &fakePeers{nodes: map[string]*identity.NodeProfile{"peerA": {NodeRID: "peerA", BaseURL: "http://peer"}}}
	poster := &fakePoster{events: []protocol.WireEvent{
		{EventID: "e1", RID: "orn:agent:x", EventType: "NEW", Contents: map[string]any{"name": "X"}},
	}}
	p := &Poller{peers: peers, client: poster, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{}}

	p.pollPeer(context.Background(), "peerA")

	require.Len(t, poster.calls, 2)
	assert.Equal(t, "/koi-net/events/poll", poster.calls[0].path)
	assert.Equal(t, "/koi-net/events/confirm", poster.calls[1].path)
	confirmReq := poster.calls[1].payload.(protocol.ConfirmRequest)
	assert.Equal(t, []string{"e1"}, confirmReq.EventIDs)
	assert.Equal(t, 0, p.failures("peerA"))
}

func TestPollPeerSkipsConfirmWhenNoEventsConfirmed(t *testing.T) {
	peers := &fakePeers{nodes: map[string]*identity.NodeProfile{"peerA": {NodeRID: "peerA", BaseURL: "http://peer"}}}
	poster := &fakePoster{}
	p := &Poller{peers: peers, client: poster, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{}}

	p.pollPeer(context.Background(), "peerA")

	require.Len(t, poster.calls, 1)
	assert.Equal(t, "/koi-net/events/poll", poster.calls[0].path)
}

func TestTickPollsEveryApprovedEdge(t *testing.T) {
	peers := &fakePeers{
		edges: []protocol.Edge{{Source: "peerA", Target: "self"}, {Source: "peerB", Target: "self"}},
		nodes: map[string]*identity.NodeProfile{
			"peerA": {NodeRID: "peerA", BaseURL: "http://a"},
			"peerB": {NodeRID: "peerB", BaseURL: "http://b"},
		},
	}
	poster := &fakePoster{}
	p := &Poller{peers: peers, client: poster, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{}}

	p.tick(context.Background())

	assert.False(t, p.LastBeat().IsZero())
	assert.Len(t, poster.calls, 2)
}

func TestTickHandlesEdgeListFailureGracefully(t *testing.T) {
	peers := &fakePeers{edgeErr: errors.New("db down")}
	p := &Poller{peers: peers, client: &fakePoster{}, nodeRID: "self", pipe: emptyPipe(), log: testLogger(), backoff: map[string]int{}}

	p.tick(context.Background())

	assert.True(t, p.LastBeat().IsZero())
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	peers := &fakePeers{}
	p := New(nil, "self", nil, 10*time.Millisecond, emptyPipe(), testLogger())
	p.peers = peers
	p.client = &fakePoster{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.NoError(t, err)
}

func TestNewDefaultsPollInterval(t *testing.T) {
	p := New(nil, "self", nil, 0, emptyPipe(), testLogger())
	assert.Equal(t, DefaultPollInterval, p.pollInterval)
}
