package main

import (
	"os"

	"github.com/mizuikk/codex-openai-wrapper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
