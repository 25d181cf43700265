package release

import (
	"context"

	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

// GHHost creates releases with the GitHub CLI.
type GHHost struct {
	run   runner.Runner
	dir   string
	token string
}

// NewGHHost creates a GHHost. The command runs in dir so gh resolves the
// repository from the local git remote. A non-empty token is passed to gh
// as GH_TOKEN, overriding any stored gh login.
func NewGHHost(r runner.Runner, dir, token string) *GHHost {
	return &GHHost{run: r, dir: dir, token: token}
}

// Args returns the gh argument list for rel. Assets are appended as
// positional arguments, which gh uploads after creating the release.
func (h *GHHost) Args(rel Release) []string {
	args := []string{
		"release", "create", rel.Tag,
		"--title", rel.Title,
		"--notes", rel.Notes,
	}
	return append(args, rel.Assets...)
}

// Create runs `gh release create`.
func (h *GHHost) Create(ctx context.Context, rel Release) error {
	cmd := runner.Command{Name: "gh", Args: h.Args(rel), Dir: h.dir}
	if h.token != "" {
		cmd.Env = []string{"GH_TOKEN=" + h.token}
	}

	if _, err := h.run.Run(ctx, cmd); err != nil {
		msg := "failed to create GitHub release. Make sure 'gh' CLI is installed and authenticated"
		if runner.IsNotFound(err) {
			msg = "gh CLI not found. You can install it from: https://cli.github.com/"
		}
		return model.WrapCLIError(model.ExitReleaseFailed, msg, err)
	}
	return nil
}
