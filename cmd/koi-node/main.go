package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "koi-node",
	Short: "koi-node runs a federated knowledge-graph node",
	Long: `koi-node is a federated knowledge-graph node in a peer-to-peer mesh.

It exchanges entity-mutation events with peers over the koi-net wire
protocol, resolves incoming entities against its local registry, and
indexes code repositories and web sources into the same graph.`,
}

var configPath string

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
