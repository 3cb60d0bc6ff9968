package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/internal/metrics"
	"github.com/DarrenZal/koi-node/protocol/transport/websocket"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the koi-net HTTP router and background tasks",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "address the koi-net HTTP router listens on")
}

// runServe wires a node and runs its HTTP router alongside the peer
// poller, code indexer, web monitor, and push hub background tasks
// (spec.md §5). All of them share one errgroup: the first task to return
// an error cancels the shared context, which stops the others and shuts
// the HTTP server down.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := buildNode(ctx, configPath)
	if err != nil {
		return err
	}
	defer n.Close()

	srv := &http.Server{
		Addr:    serveAddr,
		Handler: n.router.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.log.Info("koi-net router listening", logger.String("addr", serveAddr), logger.String("node_rid", n.profile.NodeRID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if n.cfg.Metrics.Enabled {
		g.Go(func() error {
			n.log.Info("metrics server listening", logger.String("addr", n.cfg.Metrics.Addr))
			if err := metrics.StartServer(n.cfg.Metrics.Addr); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error { return n.poller.Run(gctx) })
	g.Go(func() error { return n.indexer.Run(gctx) })
	g.Go(func() error { return n.webmon.Run(gctx) })
	g.Go(func() error { return n.wsHub.Run(gctx, websocket.DefaultPushInterval) })

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
