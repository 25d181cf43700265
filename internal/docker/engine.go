package docker

import (
	"context"
	"fmt"

	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

// BuildRequest describes one image build.
type BuildRequest struct {
	// ContextDir is the build context; it must contain a Dockerfile.
	ContextDir string

	// Tags are the image references applied to the result.
	Tags []string

	// Labels are applied to the image.
	Labels map[string]string
}

// Engine builds and pushes images.
type Engine interface {
	Build(ctx context.Context, req BuildRequest) error
	Push(ctx context.Context, ref string) error
}

// CLIEngine drives the docker binary. It relies on the user's existing
// `docker login` for registry credentials.
type CLIEngine struct {
	run runner.Runner
}

// NewCLIEngine creates a CLIEngine that executes through r.
func NewCLIEngine(r runner.Runner) *CLIEngine {
	return &CLIEngine{run: r}
}

// BuildArgs returns the docker argument list for req:
// build -t <tag>... [--label k=v]... <context>.
func (e *CLIEngine) BuildArgs(req BuildRequest) []string {
	args := make([]string, 0, 2+len(req.Tags)*2+len(req.Labels)*2)
	args = append(args, "build")
	for _, tag := range req.Tags {
		args = append(args, "-t", tag)
	}
	args = append(args, labelArgs(req.Labels)...)
	return append(args, req.ContextDir)
}

// Build runs `docker build`.
func (e *CLIEngine) Build(ctx context.Context, req BuildRequest) error {
	if _, err := e.run.Run(ctx, runner.Command{Name: "docker", Args: e.BuildArgs(req)}); err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker build failed for %s", req.ContextDir), err)
	}
	return nil
}

// Push runs `docker push <ref>`.
func (e *CLIEngine) Push(ctx context.Context, ref string) error {
	if _, err := e.run.Run(ctx, runner.Command{Name: "docker", Args: []string{"push", ref}}); err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker push failed for %s", ref), err)
	}
	return nil
}
