// Package model defines the domain types and value objects for the
// release-automation CLI.
//
// This package contains pure data structures with no external dependencies.
// ReleaseConfig and ProjectEntry describe one release run; they are built
// once at startup and never mutated afterwards. Artifacts (publish
// directories, archives, images) have no in-memory representation beyond
// the path and tag helpers defined here.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
