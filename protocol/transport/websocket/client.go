package websocket

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/pipeline"
)

// Client dials a WEBHOOK source peer's subscribe endpoint, registers this
// node, and feeds every pushed event through the knowledge pipeline — the
// push-delivery counterpart to poller.Poller's pull loop.
type Client struct {
	nodeRID  string
	ridTypes []string
	pipe     *pipeline.Pipeline
	log      logger.Logger
	dialer   *websocket.Dialer
}

// NewClient builds a Client that will identify itself as nodeRID and, once
// connected, only wants events of the given RID types pushed (nil for all).
func NewClient(nodeRID string, ridTypes []string, pipe *pipeline.Pipeline, log logger.Logger) *Client {
	return &Client{
		nodeRID:  nodeRID,
		ridTypes: ridTypes,
		pipe:     pipe,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// Run dials baseURL's subscribe endpoint and processes pushed events until
// ctx is cancelled or the connection drops. Callers are responsible for
// reconnecting (with the same per-peer backoff the poller uses) on error.
func (c *Client) Run(ctx context.Context, baseURL string) error {
	wsURL, err := toWebSocketURL(baseURL, "/koi-net/events/subscribe")
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(RegisterMessage{NodeRID: c.nodeRID, RIDTypes: c.ridTypes}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var msg PushMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.process(ctx, msg)
	}
}

func (c *Client) process(ctx context.Context, msg PushMessage) {
	for _, we := range msg.Events {
		obj := &pipeline.Object{
			RID:        we.RID,
			EventType:  we.EventType,
			Manifest:   we.Manifest,
			Contents:   we.Contents,
			SourceNode: we.SourceNode,
			EventID:    we.EventID,
		}
		if _, err := c.pipe.Process(ctx, obj); err != nil {
			c.log.Warn("webhook push event processing failed", logger.String("rid", we.RID), logger.Error(err))
		}
	}
}

func toWebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
