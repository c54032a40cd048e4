// Package main provides the CLI entry point for Conductor, a budget-bounded
// tool-calling agent served over HTTP.
//
// # Basic Usage
//
// Start the server:
//
//	conductor serve --config conductor.yaml
//
// Send a one-shot request to a running server:
//
//	conductor run "list the files in /tmp" --live
//
// Chat interactively:
//
//	conductor chat
//
// # Environment Variables
//
//   - CONDUCTOR_CONFIG: Path to configuration file (default: conductor.yaml)
//   - CONDUCTOR_BASE_URL: API base URL used by run and chat
//   - CONDUCTOR_API_KEY: API key sent by run and chat
//   - OPENROUTER_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: provider keys
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultConfigFile = "conductor.yaml"
	defaultBaseURL    = "http://localhost:8000/api/v1"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor - budget-bounded tool-calling agent",
		Long: `Conductor runs an LLM agent that plans, calls tools and answers within
per-run limits on time, tool calls, tokens and cost.

Providers: OpenRouter, OpenAI, Anthropic, AWS Bedrock, Google Gemini
Tools: web search, Python execution, persistent shell sessions, server control`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildChatCmd(),
		buildToolsCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
