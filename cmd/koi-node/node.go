package main

import (
	"context"
	"fmt"

	"github.com/DarrenZal/koi-node/codeindex"
	"github.com/DarrenZal/koi-node/graphloader"
	"github.com/DarrenZal/koi-node/health"
	"github.com/DarrenZal/koi-node/identity"
	"github.com/DarrenZal/koi-node/internal/config"
	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/pipeline"
	"github.com/DarrenZal/koi-node/poller"
	"github.com/DarrenZal/koi-node/protocol"
	wshub "github.com/DarrenZal/koi-node/protocol/transport/websocket"
	"github.com/DarrenZal/koi-node/queue"
	"github.com/DarrenZal/koi-node/resolver"
	"github.com/DarrenZal/koi-node/store"
	"github.com/DarrenZal/koi-node/webmonitor"
)

// node bundles every long-lived component a running koi-node needs, wired
// once at startup per the NodeContext pattern (spec.md §9): components hold
// a borrow of shared state rather than references to each other.
type node struct {
	cfg     *config.Config
	log     logger.Logger
	db      *store.Store
	events  *queue.Queue
	peers   *protocol.PeerStore
	client  *protocol.Client
	router  *protocol.Router
	poller  *poller.Poller
	indexer *codeindex.Indexer
	webmon  *webmonitor.Monitor
	checker *health.HealthChecker
	wsHub   *wshub.Hub
	profile identity.NodeProfile
}

// buildNode loads configuration, opens the store, derives or loads the
// node's identity, and wires every component against the shared context.
func buildNode(ctx context.Context, configPath string) (*node, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logger.NewDefaultLogger()
	log.SetLevel(logger.InfoLevel)

	priv, profile, err := identity.LoadOrCreate(cfg.Node.StateDir, cfg.Node.Name, cfg.Node.BaseURL, identity.NodeTypeFull, log)
	if err != nil {
		// Fatal per spec.md §7: a node that cannot establish its identity refuses to start.
		return nil, fmt.Errorf("loading node identity: %w", err)
	}

	db, err := store.New(ctx, store.Config{
		DSN:             cfg.Store.DSN,
		MaxConns:        cfg.Store.MaxConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	events := queue.New(db.Pool, profile.NodeRID)
	peers := protocol.NewPeerStore(db.Pool)
	client := protocol.NewClient(profile.NodeRID, priv, 0)

	schemas := resolver.NewSchemaRegistry(nil)
	resolverStore := resolver.NewPGStore(db.Pool)

	pipeCtx := &pipeline.Context{
		Pool:         db.Pool,
		NodeRID:      profile.NodeRID,
		EventQueue:   events,
		Resolver:     resolverStore,
		Schemas:      schemas,
		EmbedFn:      nil, // external embedding service (spec.md §6.4); wired by deployment-specific main variants
		CrossrefMode: resolver.Mode(cfg.Federation.CrossrefMode),
	}
	pipe := pipeline.New(pipeCtx, pipeline.DefaultHandlers(log, schemas), log)

	var signer func(payload []byte, target string) (*identity.Envelope, error)
	if priv != nil {
		signer = func(payload []byte, target string) (*identity.Envelope, error) {
			return identity.SignEnvelope(payload, profile.NodeRID, target, priv)
		}
	}

	router := protocol.NewRouter(*profile, peers, events, pipe, log, protocol.Config{
		StrictMode:                 cfg.Federation.StrictMode,
		RequireSignedEnvelopes:     cfg.Federation.RequireSignedEnvelopes,
		EnforceTargetMatch:         cfg.Federation.EnforceTargetMatch,
		EnforceSourceKeyRIDBinding: cfg.Federation.EnforceSourceKeyRIDBinding,
		AllowLegacy16NodeRID:       cfg.Federation.AllowLegacy16NodeRID,
		AllowDER64NodeRID:          cfg.Federation.AllowDER64NodeRID,
	}, signer)

	hub := wshub.NewHub(events, log)
	router.SetWebSocketHandler(hub.Handler())

	pollr := poller.New(peers, profile.NodeRID, priv, cfg.Federation.PollInterval, pipe, log)

	graph := graphloader.New(db.Pool, cfg.Node.Name)
	codeStore := codeindex.NewStore(db.Pool)
	indexer := codeindex.New(codeStore, graph, events, cfg.CodeIndex.CloneDir, cfg.Federation.GitHubScanInterval, log)

	webStore := webmonitor.NewStore(db.Pool)
	fetcher := webmonitor.NewDefaultFetcher(cfg.WebMonitor.FetchTimeout)
	webmon := webmonitor.New(fetcher, webmonitor.NoHeadlessFetcher{}, webStore,
		cfg.WebMonitor.UserRateLimitPerHour, cfg.WebMonitor.GlobalRateLimitPerHour,
		cfg.WebMonitor.HeadlessWordThreshold, cfg.Federation.WebSensorInterval, log)

	checker := health.NewHealthChecker(0)
	checker.SetCacheTTL(cfg.Health.CacheTTL)
	checker.SetLogger(log)
	checker.RegisterCheck("database", health.DatabaseHealthCheck(db.Ping))
	checker.RegisterCheck("event_queue", health.QueueHealthCheck(events.Size))
	checker.RegisterCheck("code_indexer", health.TaskHealthCheck(indexer.LastBeat, cfg.Federation.GitHubScanInterval*2))
	checker.RegisterCheck("poller", health.TaskHealthCheck(pollr.LastBeat, cfg.Federation.PollInterval*2))
	checker.RegisterCheck("web_monitor", health.TaskHealthCheck(webmon.LastBeat, cfg.Federation.WebSensorInterval*2))

	return &node{
		cfg:     cfg,
		log:     log,
		db:      db,
		events:  events,
		peers:   peers,
		client:  client,
		router:  router,
		poller:  pollr,
		indexer: indexer,
		webmon:  webmon,
		checker: checker,
		wsHub:   hub,
		profile: *profile,
	}, nil
}

func (n *node) Close() {
	n.db.Close()
}
