// Package cli implements the cobra-based CLI for release-automation.
//
// The root command runs the release pipeline for a version; the projects
// and steps subcommands list the static tables. This file defines the
// root command, global flags and exit code handling.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// Global flag variables shared across all subcommands.
// They are bound to cobra persistent flags on the root command.
var (
	// jsonOutput switches listings, the dry-run plan and errors to JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// rootDir is the repository root (default: current directory).
	rootDir string
)

// Version, Commit and Date are set at build time via ldflags from the
// main package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root cobra command with all subcommands.
func NewRootCommand() *cobra.Command {
	flags := &releaseFlags{}

	rootCmd := &cobra.Command{
		Use:   "release-automation <version>",
		Short: "SimpleHooks release automation",
		Long: `release-automation bumps the version of every SimpleHooks project,
commits and pushes the change, publishes self-contained builds, packages
them into versioned zip archives, creates the GitHub release and builds
and pushes the Docker images.

Steps (run in this order by default):
  readme, assemblies, commit, publish, github, docker

Examples:
  release-automation 2.8.3
  release-automation 2.8.3 --github-token $GITHUB_TOKEN
  release-automation 2.8.3 --steps readme,assemblies
  release-automation 2.8.3 --steps docker --filter 'container_tag == "web"'
  release-automation 2.8.3 --dry-run --json`,

		Args: cobra.ExactArgs(1),

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(cmd, args[0], flags)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Repository root (default: current directory)")

	flags.register(rootCmd)

	rootCmd.AddCommand(NewProjectsCommand())
	rootCmd.AddCommand(NewStepsCommand())

	return rootCmd
}

// Execute runs the root command under ctx and exits with the code carried
// by a returned CLIError, or 1 for any other error.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(int(handleError(os.Stderr, err)))
	}
}

// handleError prints err and returns the exit code for it.
func handleError(w io.Writer, err error) model.ExitCode {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Message, cliErr.Err)
		return cliErr.Code
	}
	printError(w, err.Error(), nil)
	return model.ExitGeneralError
}

// printError writes an error message in text or JSON form depending on
// the --json flag. Errors always go to stderr; stdout is reserved for
// command output.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]any{
			"message": message,
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// resolveRoot returns the absolute repository root from --root or the
// current directory.
func resolveRoot() (string, error) {
	dir := rootDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", model.WrapCLIError(model.ExitInvalidInput, fmt.Sprintf("invalid --root %q", dir), err)
	}
	return abs, nil
}
