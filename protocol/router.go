package protocol

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/DarrenZal/koi-node/identity"
	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/pipeline"
	"github.com/DarrenZal/koi-node/queue"
)

// Router wires the koi-net HTTP endpoints to the local queue, peer store,
// and knowledge pipeline.
type Router struct {
	profile                 identity.NodeProfile
	signer                  envelopeSigner
	peers                   *PeerStore
	events                  *queue.Queue
	pipe                    *pipeline.Pipeline
	log                     logger.Logger
	strictMode              bool
	requireSigned           bool
	enforceTarget           bool
	enforceSourceKeyBinding bool
	allowLegacy16           bool
	allowDER64              bool
	webhookHandler          http.Handler
}

// envelopeSigner signs outgoing response envelopes; nil disables signing.
type envelopeSigner func(payload []byte, target string) (*identity.Envelope, error)

// Config controls the strict-mode enforcement knobs (spec.md §6.3).
type Config struct {
	StrictMode                 bool
	RequireSignedEnvelopes     bool
	EnforceTargetMatch         bool
	EnforceSourceKeyRIDBinding bool
	AllowLegacy16NodeRID       bool
	AllowDER64NodeRID          bool
}

// NewRouter builds a Router. signer may be nil if this node has no private
// key configured (read-only / partial node). StrictMode is the master flag
// (spec.md §4.1): when set, it forces on the require-signed, enforce-target,
// and enforce-source-key-binding knobs regardless of their individual values.
func NewRouter(profile identity.NodeProfile, peers *PeerStore, events *queue.Queue, pipe *pipeline.Pipeline, log logger.Logger, cfg Config, signer envelopeSigner) *Router {
	requireSigned := cfg.RequireSignedEnvelopes || cfg.StrictMode
	enforceTarget := cfg.EnforceTargetMatch || cfg.StrictMode
	enforceSourceKeyBinding := cfg.EnforceSourceKeyRIDBinding || cfg.StrictMode

	return &Router{
		profile:                 profile,
		signer:                  signer,
		peers:                   peers,
		events:                  events,
		pipe:                    pipe,
		log:                     log,
		strictMode:              cfg.StrictMode,
		requireSigned:           requireSigned,
		enforceTarget:           enforceTarget,
		enforceSourceKeyBinding: enforceSourceKeyBinding,
		allowLegacy16:           cfg.AllowLegacy16NodeRID,
		allowDER64:              cfg.AllowDER64NodeRID,
	}
}

// SetWebSocketHandler mounts h at /koi-net/events/subscribe, the WEBHOOK-edge
// push-transport upgrade endpoint (protocol/transport/websocket.Hub.Handler).
// Accepting an http.Handler here rather than importing that package directly
// avoids a cycle: the websocket hub imports protocol for WireEvent.
func (r *Router) SetWebSocketHandler(h http.Handler) {
	r.webhookHandler = h
}

// Handler returns the http.Handler serving every /koi-net/* endpoint.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/koi-net/handshake", r.wrapSigned(r.handleHandshake))
	mux.HandleFunc("/koi-net/events/broadcast", r.wrapSigned(r.handleBroadcast))
	mux.HandleFunc("/koi-net/events/poll", r.wrapSigned(r.handlePoll))
	mux.HandleFunc("/koi-net/events/confirm", r.wrapSigned(r.handleConfirm))
	mux.HandleFunc("/koi-net/manifests/fetch", r.wrapSigned(r.handleFetchManifests))
	mux.HandleFunc("/koi-net/bundles/fetch", r.wrapSigned(r.handleFetchBundles))
	mux.HandleFunc("/koi-net/rids/fetch", r.wrapSigned(r.handleFetchRIDs))
	mux.HandleFunc("/koi-net/health", r.handleHealth)
	if r.webhookHandler != nil {
		mux.Handle("/koi-net/events/subscribe", r.webhookHandler)
	}
	return mux
}

// requestEnvelope captures the unwrapped request: the raw payload, the
// claimed source node (if any), and whether it arrived signed.
type requestEnvelope struct {
	payload    json.RawMessage
	sourceNode string
	signed     bool
}

// wrapSigned implements the common request-handling steps (spec.md §4.3):
// unwrap, verify, dispatch, and re-wrap the response as a signed envelope
// when the request was signed.
func (r *Router) wrapSigned(handle func(ctx context.Context, req requestEnvelope) (any, *Error)) http.HandlerFunc {
	return func(w http.ResponseWriter, hr *http.Request) {
		ctx := hr.Context()
		body, err := io.ReadAll(hr.Body)
		if err != nil {
			writeError(w, ErrInvalidPayload("failed to read body"))
			return
		}

		reqEnv, protoErr := r.unwrapRequest(ctx, body)
		if protoErr != nil {
			writeError(w, protoErr)
			return
		}

		result, protoErr := handle(ctx, reqEnv)
		if protoErr != nil {
			writeError(w, protoErr)
			return
		}

		r.writeResponse(w, reqEnv, result)
	}
}

func (r *Router) unwrapRequest(ctx context.Context, body []byte) (requestEnvelope, *Error) {
	var env identity.Envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Signature) > 0 {
		if err := r.verifyIncoming(ctx, env); err != nil {
			return requestEnvelope{}, err
		}
		return requestEnvelope{payload: env.Payload, sourceNode: env.SourceNode, signed: true}, nil
	}

	if r.requireSigned {
		return requestEnvelope{}, ErrUnsignedEnvelopeRequired("this node requires signed envelopes")
	}

	var bare struct {
		NodeID string `json:"node_id"`
	}
	_ = json.Unmarshal(body, &bare)
	return requestEnvelope{payload: body, sourceNode: bare.NodeID, signed: false}, nil
}

func (r *Router) verifyIncoming(ctx context.Context, env identity.Envelope) *Error {
	pubKeyDER, found, err := r.peers.PublicKeyFor(ctx, env.SourceNode)
	if err != nil || !found {
		return ErrInvalidSignature("unknown source node public key")
	}
	pubKey, err := identity.ParsePublicKeyDERBase64(pubKeyDER)
	if err != nil {
		return ErrInvalidSignature("malformed stored public key")
	}

	expectedTarget := ""
	if r.enforceTarget {
		expectedTarget = r.profile.NodeRID
	}
	if _, _, err := identity.VerifyEnvelope(&env, pubKey, "", expectedTarget); err != nil {
		switch err {
		case identity.ErrTargetNodeMismatch:
			return ErrTargetNodeMismatch(err.Error())
		default:
			return ErrInvalidSignature(err.Error())
		}
	}

	if r.enforceSourceKeyBinding {
		if !identity.NodeRIDMatchesPublicKey(env.SourceNode, pubKey, r.allowLegacy16, r.allowDER64) {
			return ErrSourceKeyRIDMismatch("source node RID does not match its public key")
		}
	}
	return nil
}

func (r *Router) writeResponse(w http.ResponseWriter, req requestEnvelope, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		writeError(w, ErrInvalidPayload("failed to marshal response"))
		return
	}

	if req.signed && r.signer != nil {
		env, err := r.signer(payload, req.sourceNode)
		if err != nil {
			writeError(w, ErrInvalidSignature("failed to sign response: "+err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *Error) {
	writeJSON(w, err.Status, map[string]string{"error": err.Code, "message": err.Message})
}

func (r *Router) handleHandshake(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in HandshakeRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	if err := r.peers.Upsert(ctx, in.Profile); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	if err := r.peers.EnsureEdge(ctx, r.profile.NodeRID, in.Profile.NodeRID, EdgePoll); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}

	edges, err := r.peers.EdgesFor(ctx, r.profile.NodeRID, in.Profile.NodeRID)
	if err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	return HandshakeResponse{Accepted: true, Profile: r.profile, Edges: edges}, nil
}

func (r *Router) handleBroadcast(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in BroadcastRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}

	accepted, duplicates := 0, 0
	for _, we := range in.Events {
		dup, err := r.enqueueAndProcess(ctx, we)
		if err != nil {
			r.log.Warn("failed to process broadcast event", logger.String("rid", we.RID), logger.Error(err))
			continue
		}
		if dup {
			duplicates++
		} else {
			accepted++
		}
	}
	return BroadcastResponse{Accepted: accepted, Duplicates: duplicates}, nil
}

func (r *Router) enqueueAndProcess(ctx context.Context, we WireEvent) (duplicate bool, err error) {
	manifestJSON, _ := json.Marshal(we.Manifest)
	contentsJSON, _ := json.Marshal(we.Contents)

	_, isDuplicate, err := r.events.Add(ctx, queue.EventType(we.EventType), we.RID, manifestJSON, contentsJSON,
		we.SourceNode, queue.DefaultRemoteTTLHours, we.EventID, nil)
	if err != nil {
		return false, err
	}
	if isDuplicate {
		return true, nil
	}

	if r.pipe != nil {
		obj := &pipeline.Object{
			RID:        we.RID,
			EventType:  we.EventType,
			Manifest:   we.Manifest,
			Contents:   we.Contents,
			SourceNode: we.SourceNode,
			EventID:    we.EventID,
		}
		if _, err := r.pipe.Process(ctx, obj); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (r *Router) handlePoll(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in PollRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	if in.Limit <= 0 {
		in.Limit = queue.DefaultPollLimit
	}

	events, err := r.events.Poll(ctx, req.sourceNode, in.Limit, in.RIDTypes)
	if err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}

	wireEvents := make([]WireEvent, 0, len(events))
	for _, e := range events {
		var manifest, contents map[string]any
		_ = json.Unmarshal(e.Manifest, &manifest)
		_ = json.Unmarshal(e.Contents, &contents)
		wireEvents = append(wireEvents, WireEvent{
			EventID:    e.EventID,
			EventType:  string(e.EventType),
			RID:        e.RID,
			Manifest:   manifest,
			Contents:   contents,
			SourceNode: e.SourceNode,
			QueuedAt:   e.QueuedAt,
		})
	}
	return PollResponse{Events: wireEvents}, nil
}

func (r *Router) handleConfirm(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in ConfirmRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	n, err := r.events.Confirm(ctx, in.EventIDs, req.sourceNode)
	if err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	return ConfirmResponse{Confirmed: n}, nil
}

func (r *Router) handleFetchManifests(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in FetchManifestsRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	// RID resolution against persisted events/manifests is delegated to the
	// queue's store; absent rows are reported via not_found rather than an error.
	manifests := make([]WireManifest, 0, len(in.RIDs))
	notFound := make([]string, 0)
	for _, rid := range in.RIDs {
		manifest, contents, found, err := r.events.LookupManifest(ctx, rid)
		if err != nil {
			return nil, ErrInvalidPayload(err.Error())
		}
		if !found {
			notFound = append(notFound, rid)
			continue
		}
		manifests = append(manifests, WireManifest{
			RID:        rid,
			Manifest:   manifest,
			SHA256Hash: ManifestHash(rid, manifest, contents),
		})
	}
	return FetchManifestsResponse{Manifests: manifests, NotFound: notFound}, nil
}

func (r *Router) handleFetchBundles(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in FetchBundlesRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	bundles := make([]Bundle, 0, len(in.RIDs))
	notFound := make([]string, 0)
	for _, rid := range in.RIDs {
		manifest, contents, found, err := r.events.LookupManifest(ctx, rid)
		if err != nil {
			return nil, ErrInvalidPayload(err.Error())
		}
		if !found {
			notFound = append(notFound, rid)
			continue
		}
		bundles = append(bundles, Bundle{RID: rid, Manifest: manifest, Contents: contents})
	}
	return FetchBundlesResponse{Bundles: bundles, NotFound: notFound}, nil
}

func (r *Router) handleFetchRIDs(ctx context.Context, req requestEnvelope) (any, *Error) {
	var in FetchRIDsRequest
	if err := json.Unmarshal(req.payload, &in); err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	rids, err := r.events.KnownRIDs(ctx, in.RIDTypes)
	if err != nil {
		return nil, ErrInvalidPayload(err.Error())
	}
	return FetchRIDsResponse{RIDs: rids}, nil
}

func (r *Router) handleHealth(w http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()
	size, err := r.events.Size(ctx)
	if err != nil {
		writeError(w, ErrInvalidPayload(err.Error()))
		return
	}
	peers, err := r.peers.Peers(ctx)
	if err != nil {
		writeError(w, ErrInvalidPayload(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Node: r.profile, EventQueueSize: size, Peers: peers})
}

