// Package dotnet wraps the .NET SDK build tool.
//
// Only `dotnet publish` is used: each project is published as a
// self-contained, platform-targeted output directory that later becomes
// the input of archive creation.
package dotnet

import (
	"context"
	"fmt"

	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

// PublishRequest holds the parameters of one `dotnet publish` invocation.
type PublishRequest struct {
	// ProjectFile is the path to the project descriptor (.csproj).
	ProjectFile string

	// OutputDir receives the published files (-o).
	OutputDir string

	// Configuration is the build configuration (-c), e.g. "Release".
	Configuration string

	// Runtime is the target runtime identifier (-r), e.g. "win-x64".
	Runtime string
}

// Args returns the dotnet argument list for the request.
func (r PublishRequest) Args() []string {
	return []string{
		"publish", r.ProjectFile,
		"-c", r.Configuration,
		"-r", r.Runtime,
		"--self-contained", "true",
		"-o", r.OutputDir,
	}
}

// Publisher runs `dotnet publish`.
type Publisher struct {
	run runner.Runner
}

// NewPublisher creates a Publisher that executes through r.
func NewPublisher(r runner.Runner) *Publisher {
	return &Publisher{run: r}
}

// Publish builds one project. A failure is returned as a CLIError with
// ExitBuildFailed; publishing is never retried.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) error {
	_, err := p.run.Run(ctx, runner.Command{Name: "dotnet", Args: req.Args()})
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed,
			fmt.Sprintf("dotnet publish failed for %s", req.ProjectFile), err)
	}
	return nil
}
