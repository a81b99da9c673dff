package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. Partial success is distinct from full success so scripts can
// detect runs where some repositories were skipped.
const (
	exitOK      = 0
	exitConfig  = 1
	exitAborted = 2
	exitPartial = 3
)

var rootCmd = &cobra.Command{
	Use:           "repoatlas",
	Short:         "Multi-agent GitHub repository analysis",
	Long:          "repoatlas fetches a GitHub user's repositories, analyzes them through\na quality-gated generation pipeline, and renders a PDF report.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *exitError) Unwrap() error { return e.err }

func exitErr(code int, err error) *exitError {
	return &exitError{code: code, err: err}
}

// execute runs the CLI and maps errors to exit codes. Flag and usage errors
// map to the configuration exit code.
func execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var xerr *exitError
	if errors.As(err, &xerr) {
		if xerr.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", xerr.err)
		}
		return xerr.code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitConfig
}
