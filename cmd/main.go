package main

import (
	"os"

	"quiz-session-engine/internal/cli"
	"quiz-session-engine/internal/logging"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.DefaultLogger().Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
