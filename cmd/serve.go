package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/image-query/internal/config"
	"github.com/kozaktomas/image-query/internal/constants"
	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Image Query web server.
The server exposes the query API, similar-image lookups over the dataset
histograms and a small demo page for uploading query images.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// similarFinder selects the backend for similar-image lookups.
func similarFinder(cfg *config.Config, store *graphStore, deps *web.Deps) error {
	switch cfg.Similar.Backend {
	case "hnsw":
		deps.Similar = initHistogramIndex(deps.Dataset, cfg.Similar.HNSWIndexPath)
	case database.BackendPostgres:
		if store.histograms == nil {
			return errors.New("SIMILAR_BACKEND=postgres requires GRAPH_BACKEND=postgres")
		}
		n, err := store.histograms.CountHistograms(context.Background())
		if err != nil {
			return fmt.Errorf("failed to count stored histograms: %w", err)
		}
		fmt.Printf("Similar images served from PostgreSQL (%d histograms)\n", n)
		deps.Similar = store.histograms
	case "", "none":
		fmt.Println("Similar image lookups disabled")
	default:
		return fmt.Errorf("unknown SIMILAR_BACKEND %q (use hnsw, postgres or none)", cfg.Similar.Backend)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := context.Background()

	fmt.Printf("Loading dataset from %s...\n", cfg.Dataset.Dir)
	ds, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Dataset loaded: %d images, %d classes, %d excluded classes\n",
		ds.Len(), ds.Frequencies().Len(), ds.Exclusions().Len())

	fmt.Printf("Connecting to %s class graph...\n", cfg.Graph.Backend)
	store, err := openGraphStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	det, err := newDetector(ctx, cfg, ds)
	if err != nil {
		return err
	}
	fmt.Printf("Using detector %s\n", det.Name())

	pipeline, err := newPipeline(cfg, ds, det, store.graph, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	deps := web.Deps{Retriever: pipeline, Dataset: ds, Graph: store.graph}
	if err := similarFinder(cfg, store, &deps); err != nil {
		return err
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, deps, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Image Query on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
