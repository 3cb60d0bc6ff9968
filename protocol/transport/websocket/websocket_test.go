package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/pipeline"
	"github.com/DarrenZal/koi-node/queue"
)

type fakePeeker struct {
	mu       sync.Mutex
	events   []queue.Event
	peeked   []string
	delivered map[string][]string
}

func newFakePeeker(events ...queue.Event) *fakePeeker {
	return &fakePeeker{events: events, delivered: make(map[string][]string)}
}

func (f *fakePeeker) Peek(_ context.Context, targetNode string, _ int, _ []string) ([]queue.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peeked = append(f.peeked, targetNode)
	if _, already := f.delivered[targetNode]; already {
		return nil, nil
	}
	return f.events, nil
}

func (f *fakePeeker) MarkDelivered(_ context.Context, eventIDs []string, targetNode string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[targetNode] = append(f.delivered[targetNode], eventIDs...)
	return len(eventIDs), nil
}

func testLogger() logger.Logger {
	l := logger.NewDefaultLogger()
	l.SetLevel(logger.ErrorLevel)
	return l
}

func TestHub_PushesVisibleEventsAndMarksDelivered(t *testing.T) {
	manifest, _ := json.Marshal(map[string]any{"name": "Salish Sea"})
	peeker := newFakePeeker(queue.Event{
		EventID:    "evt-1",
		EventType:  queue.EventNew,
		RID:        "orn:entity:Bioregion/salish-sea",
		Manifest:   manifest,
		SourceNode: "orn:koi-net.node:peer+abc",
		QueuedAt:   time.Now().UTC(),
	})

	hub := NewHub(peeker, testLogger())
	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	processed := make(chan pipeline.Object, 1)
	recordingPipe := pipeline.New(&pipeline.Context{}, []pipeline.Handler{
		{Phase: pipeline.PhaseFinal, Name: "record", Fn: func(_ context.Context, _ *pipeline.Context, obj *pipeline.Object) error {
			select {
			case processed <- *obj:
			default:
			}
			return nil
		}},
	}, testLogger())
	client := NewClient("orn:koi-net.node:me+def", nil, recordingPipe, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() { _ = client.Run(ctx, server.URL) }()

	hubCtx, hubCancel := context.WithCancel(ctx)
	defer hubCancel()
	go func() { _ = hub.Run(hubCtx, 20*time.Millisecond) }()

	select {
	case obj := <-processed:
		assert.Equal(t, "orn:entity:Bioregion/salish-sea", obj.RID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed event to reach the pipeline")
	}

	require.Eventually(t, func() bool {
		peeker.mu.Lock()
		defer peeker.mu.Unlock()
		return len(peeker.delivered["orn:koi-net.node:me+def"]) == 1
	}, time.Second, 10*time.Millisecond, "expected event to be marked delivered after a successful push")
}

func TestToWebSocketURL(t *testing.T) {
	u, err := toWebSocketURL("http://localhost:8000", "/koi-net/events/subscribe")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/koi-net/events/subscribe", u)

	u, err = toWebSocketURL("https://peer.example.com/base/", "/koi-net/events/subscribe")
	require.NoError(t, err)
	assert.Equal(t, "wss://peer.example.com/base/koi-net/events/subscribe", u)
}
