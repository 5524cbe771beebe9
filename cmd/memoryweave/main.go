// Package main implements the memoryweave CLI: the two lifecycle hook
// entrypoints (precompact, sessionstart) plus operator commands for
// inspecting and maintaining the local memory store.
//
// # File Index
//
//   - main.go       - entry point, rootCmd, global flags, bootstrap helper
//   - cmd_hooks.go  - precompactCmd, sessionstartCmd (stdin/stdout JSON)
//   - cmd_ops.go    - initCmd, statsCmd, exportCmd, pruneCmd
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"memoryweave/internal/config"
	"memoryweave/internal/embedding"
	"memoryweave/internal/graph"
	"memoryweave/internal/logging"
	"memoryweave/internal/pipeline"
	"memoryweave/internal/store"
)

var (
	verbose   bool
	workspace string

	logger *zap.Logger
)

// rootCmd is the base memoryweave command.
var rootCmd = &cobra.Command{
	Use:   "memoryweave",
	Short: "memoryweave - local-first memory for AI coding sessions",
	Long: `memoryweave turns a coding agent's transcripts into durable, retrievable
memory: it chunks each compaction's transcript into intent/action/outcome
units, scores and embeds them, and stores them alongside a knowledge graph
of the entities they mention.

Run as two lifecycle hooks:
  memoryweave precompact    < PreCompact event JSON on stdin
  memoryweave sessionstart  < SessionStart event JSON on stdin

Plus operator commands for inspecting and maintaining the store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		logCfg := config.Default(ws).Logging
		if cfg, err := config.Load(ws); err == nil {
			logCfg = cfg.Logging
		}
		level := logCfg.Level
		if verbose {
			level = 0
		}
		if err := logging.Initialize(ws, logCfg.DebugMode, level); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	rootCmd.AddCommand(
		precompactCmd,
		sessionstartCmd,
		initCmd,
		statsCmd,
		exportCmd,
		pruneCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the --workspace flag value, absolutized, falling
// back to the current directory.
func resolveWorkspace() (string, error) {
	ws := workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return "", err
		}
		return ws, nil
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return ws, nil
	}
	return abs, nil
}

// bootstrap loads configuration for the workspace and constructs the
// long-lived handles (store, embedding engine, graph cache) a pipeline
// invocation needs. Callers must Close() the returned store.
func bootstrap() (config.Config, pipeline.Dependencies, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return config.Config{}, pipeline.Dependencies{}, err
	}
	cfg, err := config.Load(ws)
	if err != nil {
		return config.Config{}, pipeline.Dependencies{}, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return cfg, pipeline.Dependencies{}, fmt.Errorf("open store: %w", err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:         cfg.Embedding.Provider,
		Dimensions:       cfg.Embedding.Dimensions,
		OllamaEndpoint:   cfg.Embedding.OllamaEndpoint,
		OllamaModel:      cfg.Embedding.OllamaModel,
		BatchConcurrency: cfg.Embedding.BatchConcurrency,
	})
	if err != nil {
		st.Close()
		return cfg, pipeline.Dependencies{}, fmt.Errorf("build embedding engine: %w", err)
	}

	cache := graph.NewCache(graphSource(st), secondsToDuration(cfg.Graph.CacheTTLSeconds),
		cfg.Graph.Damping, cfg.Graph.Tolerance, cfg.Graph.MaxIterations)

	return cfg, pipeline.Dependencies{
		Store:      st,
		Engine:     engine,
		GraphCache: cache,
		Config:     cfg,
	}, nil
}

func secondsToDuration(s int) time.Duration {
	if s <= 0 {
		s = 300
	}
	return time.Duration(s) * time.Second
}

// graphSource adapts LocalStore.AllLinks to graph.Source.
func graphSource(st *store.LocalStore) graph.Source {
	return func() ([]graph.Link, error) {
		links, err := st.AllLinks()
		if err != nil {
			return nil, err
		}
		out := make([]graph.Link, len(links))
		for i, l := range links {
			out[i] = graph.Link{EntityA: l.EntityA, Relation: l.Relation, EntityB: l.EntityB, Weight: l.Weight}
		}
		return out, nil
	}
}
