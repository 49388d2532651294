package main

import (
	"context"
	"fmt"
	"os"

	"github.com/3leaps/blockcheck/internal/cmd"
	apperrors "github.com/3leaps/blockcheck/internal/errors"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(apperrors.ExitCodeOf(err))
	}
}
