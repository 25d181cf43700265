// Package git provides the version-control operations of a release.
//
// This package wraps Git CLI commands to stage, commit and push the
// version bump. It is the Git integration layer used by the
// orchestrator's commit step.
//
// Design decisions:
//   - We shell out to `git` rather than using a Go Git library so that the
//     user's credential helpers, hooks and signing configuration apply
//     exactly as they would on the command line.
//   - Every command goes through a runner.Runner, which keeps tests free of
//     real repositories where they only care about the arguments.
//   - All errors from Git commands are wrapped in model.CLIError with
//     ExitGitError to enable proper CLI exit code handling.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

// Client runs git commands against a single working tree.
type Client struct {
	// repoPath is the repository root the release was started in, not
	// necessarily the process's working directory.
	repoPath string
	run      runner.Runner
}

// NewClient creates a Client operating on the working tree at repoPath.
func NewClient(repoPath string, r runner.Runner) *Client {
	return &Client{repoPath: repoPath, run: r}
}

// AddAll stages every change in the working tree (`git add .`).
//
// The pathspec is relative to repoPath because of -C, so this stages the
// whole repository even when the tool is started from a subdirectory.
// Untracked files are included too, honoring the repository's .gitignore.
func (c *Client) AddAll(ctx context.Context) error {
	_, err := c.git(ctx, "add", ".")
	return err
}

// Commit records the staged changes with the given message.
// It fails when there is nothing to commit, like `git commit` itself.
func (c *Client) Commit(ctx context.Context, message string) error {
	// The message goes in as a single argv element, so it needs no quoting
	// even though it contains spaces.
	_, err := c.git(ctx, "commit", "-m", message)
	return err
}

// Push pushes branch to remote (`git push <remote> <branch>`).
func (c *Client) Push(ctx context.Context, remote, branch string) error {
	_, err := c.git(ctx, "push", remote, branch)
	return err
}

// CurrentBranch returns the name of the currently checked-out branch.
//
// Uses `git rev-parse --abbrev-ref HEAD` which returns the short branch name
// (e.g., "main" instead of "refs/heads/main"). Returns "HEAD" if the
// repository is in a detached HEAD state.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	output, err := c.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// git executes a git command with the given arguments in the repository.
//
// The repoPath is passed to git via the -C flag, which causes git
// to change to that directory before doing anything else. This avoids
// depending on the process's working directory.
func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", c.repoPath}, args...)

	// Only the subcommand goes into the error message; the -C path is
	// already in the runner's debug log and would only add noise here.
	res, err := c.run.Run(ctx, runner.Command{Name: "git", Args: fullArgs})
	if err != nil {
		return "", model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("git %s failed", strings.Join(args, " ")), err)
	}
	return res.Stdout, nil
}
