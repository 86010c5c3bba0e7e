package pathweave

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pathweave/pathweave/pkg/config"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export graph metric tables to Parquet",
	Long: `Export the current graph's concept, relation, and cluster tables to
Parquet files for offline analysis.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("export-path", "", "Path to directory for Parquet metric export")
	exportCmd.Flags().String("store-path", "", "Store path (empty uses the configured default)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("export-path") {
		cfg.Export.ParquetPath, _ = cmd.Flags().GetString("export-path")
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}

	client, persist, err := initializePathWeave(cfg)
	if err != nil {
		return err
	}
	defer persist.Close()

	if err := client.ExportMetrics(context.Background()); err != nil {
		return err
	}

	g := client.Snapshot()
	fmt.Printf("Exported graph version %d (%d concepts, %d relations, %d clusters) to %s\n",
		g.Version, len(g.Nodes), len(g.Edges), len(g.Clusters), cfg.Export.ParquetPath)
	return nil
}
