package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memoryweave/internal/hook"
	"memoryweave/internal/pipeline"
)

// sessionScoped controls whether sessionstart additively filters retrieval
// to the requesting session. Off by default; pass --session to scope.
var sessionScoped bool

// precompactCmd reads a PreCompactInput JSON envelope from stdin, runs the
// PreCompact pipeline, and writes the PreCompactOutput JSON envelope to stdout.
var precompactCmd = &cobra.Command{
	Use:   "precompact",
	Short: "Ingest the transcript named in a PreCompact hook event (JSON on stdin)",
	RunE:  runPrecompact,

	SilenceUsage:  true,
	SilenceErrors: true,
}

// sessionstartCmd reads a SessionStartInput JSON envelope from stdin, runs
// retrieval, and writes the SessionStartOutput JSON envelope to stdout.
var sessionstartCmd = &cobra.Command{
	Use:   "sessionstart",
	Short: "Retrieve relevant memories for a SessionStart hook event (JSON on stdin)",
	RunE:  runSessionStart,
}

func init() {
	sessionstartCmd.Flags().BoolVar(&sessionScoped, "session", false, "Restrict retrieval to the requesting session only")
}

func runPrecompact(cmd *cobra.Command, args []string) error {
	var input hook.PreCompactInput
	if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
		writeJSON(hook.PreCompactOutput{Status: "error", Error: fmt.Sprintf("malformed input: %v", err)})
		return fmt.Errorf("precompact: malformed input: %w", err)
	}

	_, deps, err := bootstrap()
	if err != nil {
		writeJSON(hook.PreCompactOutput{Status: "error", Error: err.Error()})
		return fmt.Errorf("precompact: %w", err)
	}
	defer deps.Store.Close()

	logger.Info("precompact", zap.String("session_id", input.SessionID))

	out, err := pipeline.RunPreCompact(context.Background(), deps, input)
	if err != nil {
		out = hook.PreCompactOutput{Status: "error", Error: err.Error()}
	}
	writeJSON(out)
	if out.Status == "error" {
		return fmt.Errorf("precompact: %s", out.Error)
	}
	return nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	var input hook.SessionStartInput
	if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
		writeJSON(hook.SessionStartOutput{})
		return nil
	}

	_, deps, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryweave: %v\n", err)
		writeJSON(hook.SessionStartOutput{})
		return nil
	}
	defer deps.Store.Close()

	logger.Info("sessionstart", zap.String("session_id", input.SessionID), zap.String("task_query", input.TaskQuery))

	out, err := pipeline.RunSessionStart(context.Background(), deps, input, sessionScoped)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryweave: %v\n", err)
		writeJSON(hook.SessionStartOutput{})
		return nil
	}
	writeJSON(out)
	return nil
}

// writeJSON emits v to stdout as a single JSON line. Both hook commands
// always write a parseable envelope first; precompact then returns an error
// up to cobra (non-zero exit) whenever that envelope has status "error",
// while sessionstart always exits 0 with an empty envelope on failure.
func writeJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "memoryweave: failed to write output: %v\n", err)
	}
}
