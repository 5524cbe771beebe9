// Package config holds all memoryweave configuration, loaded from
// <workspace>/.memoryweave/config.yaml with sensible defaults when absent.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration object.
type Config struct {
	Workspace string `yaml:"-"`

	Logging   LoggingConfig   `yaml:"logging"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Graph     GraphConfig     `yaml:"graph"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Pruner    PrunerConfig    `yaml:"pruner"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode bool `yaml:"debug_mode"`
	Level     int  `yaml:"level"` // 0=debug,1=info,2=warn,3=error
}

// ChunkerConfig bounds the chunker.
type ChunkerConfig struct {
	IntentSoftCap      int `yaml:"intent_soft_cap"`
	ActionSoftCap      int `yaml:"action_soft_cap"`
	OutcomeSoftCap     int `yaml:"outcome_soft_cap"`
	ToolGapThreshold   int `yaml:"tool_gap_threshold"`   // messages between tool calls before natural-boundary split
	FileGroupMin       int `yaml:"file_group_min"`       // not read by the chunker; only FileGroupMax bounds a run
	FileGroupMax       int `yaml:"file_group_max"`       // max consecutive file writes to collapse (5)
}

// ScorerConfig holds the ten signal weights plus recency half-life.
type ScorerConfig struct {
	DecisionMarkerWeight     float64 `yaml:"decision_marker_weight"`
	ErrorResolutionWeight    float64 `yaml:"error_resolution_weight"`
	LearningWeight           float64 `yaml:"learning_weight"`
	FileCreationWeight       float64 `yaml:"file_creation_weight"`
	TestSuccessWeight        float64 `yaml:"test_success_weight"`
	ToolUsagePerCallWeight   float64 `yaml:"tool_usage_per_call_weight"`
	ToolUsageCap             int     `yaml:"tool_usage_cap"`
	CodePresenceWeight       float64 `yaml:"code_presence_weight"`
	ArchitectureWeight       float64 `yaml:"architecture_weight"`
	FileOpsPerFileWeight     float64 `yaml:"file_ops_per_file_weight"`
	FileOpsCap               int     `yaml:"file_ops_cap"`
	RecencyHalfLifeDays      float64 `yaml:"recency_half_life_days"`
}

// EmbeddingConfig selects and configures the embedding engine.
type EmbeddingConfig struct {
	Provider          string `yaml:"provider"` // "deterministic" or "ollama"
	Dimensions        int    `yaml:"dimensions"`
	OllamaEndpoint    string `yaml:"ollama_endpoint"`
	OllamaModel       string `yaml:"ollama_model"`
	BatchConcurrency  int    `yaml:"batch_concurrency"`
}

// StoreConfig locates the persistent store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	RequireVec   bool   `yaml:"require_vec"`
	// Dimensions is the deploy-time constant D: a put whose vector length
	// disagrees with this is rejected rather than silently stored, since
	// mixed-dimension vectors would corrupt similarity search.
	Dimensions int `yaml:"dimensions"`
}

// GraphConfig tunes the knowledge graph.
type GraphConfig struct {
	Damping          float64 `yaml:"damping"`
	Tolerance        float64 `yaml:"tolerance"`
	MaxIterations    int     `yaml:"max_iterations"`
	CacheTTLSeconds  int     `yaml:"cache_ttl_seconds"`
	MaxHops          int     `yaml:"max_hops"`
}

// RetrievalConfig tunes SessionStart adaptive-K retrieval.
type RetrievalConfig struct {
	KMax            int     `yaml:"k_max"`
	KRecent         int     `yaml:"k_recent"`
	MinImportance   float64 `yaml:"min_importance"`
	MinSimilarity   float64 `yaml:"min_similarity"`
	Alpha           float64 `yaml:"alpha"`
	Beta            float64 `yaml:"beta"`
	SessionScoped   bool    `yaml:"session_scoped"` // default false: cross-session
}

// PrunerConfig tunes the pruner.
type PrunerConfig struct {
	OldThresholdDays       int     `yaml:"old_threshold_days"`
	LowImportanceThreshold float64 `yaml:"low_importance_threshold"`
	RedundancyThreshold    float64 `yaml:"redundancy_threshold"`
	MaxPerSession          int     `yaml:"max_per_session"`
}

// ClusterConfig tunes the clusterer.
type ClusterConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold"`
}

// PipelineConfig bounds the PreCompact pipeline.
type PipelineConfig struct {
	MaxTranscriptMessages int `yaml:"max_transcript_messages"`
	AutoPrune             bool `yaml:"auto_prune"`
	AutoCluster           bool `yaml:"auto_cluster"`
}

// Default returns the full default configuration for a given workspace root.
func Default(workspace string) Config {
	return Config{
		Workspace: workspace,
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     1,
		},
		Chunker: ChunkerConfig{
			IntentSoftCap:    500,
			ActionSoftCap:    1000,
			OutcomeSoftCap:   300,
			ToolGapThreshold: 3,
			FileGroupMin:     3,
			FileGroupMax:     5,
		},
		Scorer: ScorerConfig{
			DecisionMarkerWeight:   10.0,
			ErrorResolutionWeight:  8.0,
			LearningWeight:         7.0,
			FileCreationWeight:     6.0,
			TestSuccessWeight:      5.0,
			ToolUsagePerCallWeight: 0.5,
			ToolUsageCap:           10,
			CodePresenceWeight:     2.0,
			ArchitectureWeight:     4.0,
			FileOpsPerFileWeight:   0.3,
			FileOpsCap:             15,
			RecencyHalfLifeDays:    30.0,
		},
		Embedding: EmbeddingConfig{
			Provider:         "deterministic",
			Dimensions:       256,
			OllamaEndpoint:   "http://localhost:11434",
			OllamaModel:      "embeddinggemma",
			BatchConcurrency: 4,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(workspace, ".memoryweave", "memory.db"),
			RequireVec:   false,
			Dimensions:   256,
		},
		Graph: GraphConfig{
			Damping:         0.85,
			Tolerance:       1e-6,
			MaxIterations:   100,
			CacheTTLSeconds: 300,
			MaxHops:         2,
		},
		Retrieval: RetrievalConfig{
			KMax:          20,
			KRecent:       4,
			MinImportance: 0,
			MinSimilarity: 0.35,
			Alpha:         0.6,
			Beta:          0.4,
			SessionScoped: false,
		},
		Pruner: PrunerConfig{
			OldThresholdDays:       90,
			LowImportanceThreshold: 3.0,
			RedundancyThreshold:    0.95,
			MaxPerSession:          500,
		},
		Cluster: ClusterConfig{
			DistanceThreshold: 0.4,
		},
		Pipeline: PipelineConfig{
			MaxTranscriptMessages: 1000,
			AutoPrune:             true,
			AutoCluster:           false,
		},
	}
}

// Path returns the default config file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".memoryweave", "config.yaml")
}

// Load reads config.yaml from the workspace, falling back to defaults for any
// field absent from the file. Returns defaults if the file does not exist.
func Load(workspace string) (Config, error) {
	cfg := Default(workspace)
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.Workspace = workspace
	return cfg, nil
}

// Save writes the configuration to <workspace>/.memoryweave/config.yaml.
func Save(cfg Config) error {
	dir := filepath.Dir(Path(cfg.Workspace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(cfg.Workspace), data, 0o644)
}
