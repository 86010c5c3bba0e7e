package pathweave

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathweave/pathweave"
	"github.com/pathweave/pathweave/pkg/config"
	"github.com/pathweave/pathweave/pkg/content"
	"github.com/pathweave/pathweave/pkg/journey"
	"github.com/pathweave/pathweave/pkg/logger"
	"github.com/pathweave/pathweave/pkg/server"
	"github.com/pathweave/pathweave/pkg/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the PathWeave HTTP server",
	Long: `Start the PathWeave HTTP server to provide REST API access to the concept
graph and journey planner.

The server provides endpoints for:
- Ingesting extracted documents and raw extraction payloads
- Generating, saving, and retrieving learning journeys
- Applying interaction feedback to user profiles
- Graph summaries, reclustering, and metric export
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Store flags
	serverCmd.Flags().String("store-path", "", "Store path (empty uses the configured default)")

	// Content collaborator flags
	serverCmd.Flags().String("content-endpoint", "", "Content collaborator endpoint URL")

	// Export flags
	serverCmd.Flags().String("export-path", "", "Path to directory for Parquet metric export")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Initialize PathWeave
	fmt.Println("Initializing PathWeave...")
	client, persist, err := initializePathWeave(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize PathWeave: %w", err)
	}
	defer persist.Close()

	// Create and setup server
	srv := server.New(cfg, client)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Store flags
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}

	// Content collaborator flags
	if cmd.Flags().Changed("content-endpoint") {
		cfg.Content.Endpoint, _ = cmd.Flags().GetString("content-endpoint")
	}

	// Export flags
	if cmd.Flags().Changed("export-path") {
		cfg.Export.ParquetPath, _ = cmd.Flags().GetString("export-path")
	}
}

// initializePathWeave wires the client from configuration.
func initializePathWeave(cfg *config.Config) (*pathweave.Client, *store.Store, error) {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	persist, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		return nil, nil, err
	}

	var binder content.Binder
	if cfg.Content.Endpoint != "" {
		binder = content.NewHTTPBinder(
			cfg.Content.Endpoint,
			time.Duration(cfg.Content.TimeoutSeconds)*time.Second,
			content.BreakerConfig{
				MaxRequests:      cfg.Content.MaxRequests,
				Interval:         time.Duration(cfg.Content.IntervalSeconds) * time.Second,
				Timeout:          time.Duration(cfg.Content.CooldownSeconds) * time.Second,
				ReadyToTripRatio: cfg.Content.ReadyToTripRatio,
			},
			log,
		)
	}

	client, err := pathweave.NewClient(persist, binder, &pathweave.Config{
		MergeThreshold: cfg.Builder.MergeThreshold,
		ClusterKMin:    cfg.Cluster.KMin,
		ClusterKMax:    cfg.Cluster.KMax,
		Planner: journey.Config{
			HopRadius:    cfg.Planner.HopRadius,
			MaxScope:     cfg.Planner.MaxScope,
			TargetLength: cfg.Planner.TargetLength,
			MaxDepthJump: cfg.Planner.MaxDepthJump,
			Epsilon:      cfg.Planner.Epsilon,
			MinScore:     cfg.Planner.MinScore,
			SpiralCore:   cfg.Planner.SpiralCore,
		},
		ProfileAlpha:    cfg.Profile.Alpha,
		CacheMaxEntries: cfg.Cache.MaxEntries,
		CacheDivergence: cfg.Cache.Divergence,
		ExportDir:       cfg.Export.ParquetPath,
	}, log)
	if err != nil {
		persist.Close()
		return nil, nil, err
	}
	return client, persist, nil
}
