package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	app "github.com/valter-silva-au/heady-conductor/internal"
	"github.com/valter-silva-au/heady-conductor/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	a, err := app.NewApp(basePath, app.Options{Verbose: cli.WantsVerbose(os.Args[1:])})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing heady: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	if code := exitCode(os.Stderr, err, a.Close()); code != 0 {
		os.Exit(code)
	}
}

// exitCode reports runErr and closeErr to w and returns the process status.
// A failure to close the application fails the run even when the command
// itself succeeded.
func exitCode(w io.Writer, runErr, closeErr error) int {
	code := 0
	if runErr != nil {
		// The failed result has already been printed.
		if !errors.Is(runErr, cli.ErrActionFailed) {
			fmt.Fprintf(w, "Error: %v\n", runErr)
		}
		code = 1
	}
	if closeErr != nil {
		fmt.Fprintf(w, "Error closing heady: %v\n", closeErr)
		code = 1
	}
	return code
}
