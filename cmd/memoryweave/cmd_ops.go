package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"memoryweave/internal/config"
	"memoryweave/internal/pipeline"
	"memoryweave/internal/store"
)

var forceInit bool

// initCmd writes a default config.yaml and creates the .memoryweave
// directory structure for a new workspace.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .memoryweave workspace with a default config",
	RunE:  runInit,
}

// statsCmd summarizes the store's contents.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics about stored memories",
	RunE:  runStats,
}

var (
	exportSession string
)

// exportCmd dumps stored memories as JSON, optionally scoped to a session.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored memories as JSON",
	RunE:  runExport,
}

var pruneDryRun bool

// pruneCmd runs a standalone deletion sweep, defaulting to dry-run so an
// operator can preview deletions before committing to them.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run the pruning policies against the whole store",
	RunE:  runPruneCmd,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing config.yaml")
	exportCmd.Flags().StringVar(&exportSession, "session", "", "Restrict export to one session")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", true, "Report what would be deleted without deleting")
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}

	path := config.Path(ws)
	if _, statErr := os.Stat(path); statErr == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default(ws)
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(ws, ".memoryweave", "logs"), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	fmt.Printf("Initialized memoryweave workspace at %s\n", ws)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	_, deps, err := bootstrap()
	if err != nil {
		return err
	}
	defer deps.Store.Close()

	st, err := deps.Store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runExport(cmd *cobra.Command, args []string) error {
	_, deps, err := bootstrap()
	if err != nil {
		return err
	}
	defer deps.Store.Close()

	memories, err := deps.Store.Query(context.Background(), store.Filter{SessionID: exportSession})
	if err != nil {
		return fmt.Errorf("query memories: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(memories)
}

func runPruneCmd(cmd *cobra.Command, args []string) error {
	_, deps, err := bootstrap()
	if err != nil {
		return err
	}
	defer deps.Store.Close()

	report, err := pipeline.RunPrune(context.Background(), deps, pruneDryRun)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	action := "would delete"
	if !pruneDryRun {
		action = "deleted"
	}
	fmt.Printf("%s %d memories\n", action, len(report.WouldDelete))
	for _, id := range report.WouldDelete {
		fmt.Printf("  %s (%s)\n", id, report.Reasons[id])
	}
	return nil
}
