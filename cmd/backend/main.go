// Command backend serves the CIO dashboard API and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"

	"cio-dashboard/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", err)
		logger.Sync()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger.Sync()
}
