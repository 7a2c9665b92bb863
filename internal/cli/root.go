// Package cli defines the cobra commands for the gateway binary.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "codex-openai-wrapper",
	Short: "OpenAI/Ollama-compatible gateway for the ChatGPT Responses API",
	Long: `codex-openai-wrapper exposes OpenAI chat/text completions and the Ollama
API on top of a ChatGPT Responses-API upstream, translating the event
stream (reasoning, tool calls, usage) in both directions.

Running without a subcommand starts the server.`,
	Run:     runServe,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default config.yaml)")
}
