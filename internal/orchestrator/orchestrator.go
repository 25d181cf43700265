// Package orchestrator runs the release pipeline.
//
// An Orchestrator owns an immutable ReleaseConfig and the project table
// and exposes one method per pipeline step. The steps run strictly in
// sequence; each external tool sits behind a small interface so the
// pipeline can be exercised without dotnet, gh or a Docker daemon.
//
// Failure policy: commit/push, remote release creation and per-project
// image failures are logged and the run continues. Every other failure
// aborts the run.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/shinji-kodama/release-automation/internal/docker"
	"github.com/shinji-kodama/release-automation/internal/dotnet"
	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/release"
)

// VersionControl is the subset of git the commit step needs.
// *git.Client satisfies it.
type VersionControl interface {
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
	CurrentBranch(ctx context.Context) (string, error)
}

// Publisher builds one project. *dotnet.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, req dotnet.PublishRequest) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Git       VersionControl
	Publisher Publisher

	// Host creates the remote release. It may be nil when no token is
	// configured; the release step then stops after the archives.
	Host release.Host

	// Engine builds and pushes images. It may be nil when the docker
	// step is not going to run.
	Engine docker.Engine

	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger

	// Out receives progress banners and the completion summary.
	// Defaults to io.Discard.
	Out io.Writer

	// Now stamps image labels. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator drives a single release.
type Orchestrator struct {
	cfg      model.ReleaseConfig
	projects []model.ProjectEntry
	deps     Deps
	log      *slog.Logger
	out      io.Writer
}

// New validates cfg.Version and returns an Orchestrator over projects.
// A malformed version is rejected here so no step can run with it.
func New(cfg model.ReleaseConfig, projects []model.ProjectEntry, deps Deps) (*Orchestrator, error) {
	if err := model.ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	if cfg.Configuration == "" {
		cfg.Configuration = model.DefaultConfiguration
	}
	if cfg.Runtime == "" {
		cfg.Runtime = model.DefaultRuntime
	}
	if cfg.Remote == "" {
		cfg.Remote = model.DefaultRemote
	}
	if cfg.Branch == "" {
		cfg.Branch = model.DefaultBranch
	}
	if cfg.ImageRepo == "" {
		cfg.ImageRepo = model.DefaultImageRepo
	}
	if cfg.DockerRegistry == "" {
		cfg.DockerRegistry = model.DefaultDockerRegistry
	}

	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	p := make([]model.ProjectEntry, len(projects))
	copy(p, projects)

	return &Orchestrator{
		cfg:      cfg,
		projects: p,
		deps:     deps,
		log:      deps.Logger,
		out:      deps.Out,
	}, nil
}

// Config returns a copy of the release configuration.
func (o *Orchestrator) Config() model.ReleaseConfig {
	return o.cfg
}

// Projects returns a copy of the project table this run operates on.
func (o *Orchestrator) Projects() []model.ProjectEntry {
	p := make([]model.ProjectEntry, len(o.projects))
	copy(p, o.projects)
	return p
}

// Colors for progress output. fatih/color disables them when stdout is
// not a terminal or NO_COLOR is set.
var (
	bannerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
)

type step struct {
	name  model.StepName
	title string
	run   func(ctx context.Context) error
}

func (o *Orchestrator) steps() map[model.StepName]step {
	return map[model.StepName]step{
		model.StepReadme: {
			model.StepReadme, fmt.Sprintf("Setting new version to %s", o.cfg.Version), o.UpdateReadme,
		},
		model.StepAssemblies: {
			model.StepAssemblies, "Updating assembly versions", o.UpdateAssemblyVersions,
		},
		model.StepCommit: {
			model.StepCommit, "Commit and push version changes", o.CommitAndPush,
		},
		model.StepPublish: {
			model.StepPublish, fmt.Sprintf("Publishing projects for %s", o.cfg.Runtime), o.PublishProjects,
		},
		model.StepGitHub: {
			model.StepGitHub, "Creating GitHub release", o.CreateRemoteRelease,
		},
		model.StepDocker: {
			model.StepDocker, "Docker operations", o.DockerBuildAndPush,
		},
	}
}

func (o *Orchestrator) runStep(ctx context.Context, s step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bannerColor.Fprintf(o.out, "\n=== %s ===\n", s.title)
	o.log.Debug("step started", "step", s.name)
	return s.run(ctx)
}

// RunFull runs every step in pipeline order. The first error aborts the
// run and is returned; on success a completion summary is printed.
func (o *Orchestrator) RunFull(ctx context.Context) error {
	fmt.Fprintf(o.out, "Starting full release process for version %s\n", o.cfg.Version)

	table := o.steps()
	for _, name := range model.AllSteps() {
		if err := o.runStep(ctx, table[name]); err != nil {
			failureColor.Fprintf(o.out, "\nRelease process failed: %v\n", err)
			return err
		}
	}

	successColor.Fprintf(o.out, "\nRelease %s completed successfully!\n", o.cfg.Version)
	fmt.Fprintln(o.out, "\nNext steps:")
	fmt.Fprintln(o.out, "1. Verify the GitHub release was created correctly")
	fmt.Fprintln(o.out, "2. Test the Docker images")
	fmt.Fprintln(o.out, "3. Update any deployment configurations")
	return nil
}

// RunPartial runs the named steps in the given order. Unknown names are
// logged with the list of available steps and skipped. A step error
// aborts the remaining steps.
func (o *Orchestrator) RunPartial(ctx context.Context, names []string) error {
	table := o.steps()
	for _, name := range names {
		s, ok := table[model.StepName(name)]
		if !ok {
			o.log.Warn("unknown step", "step", name, "available", availableSteps())
			continue
		}
		if err := o.runStep(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func availableSteps() string {
	names := make([]string, 0, len(model.AllSteps()))
	for _, s := range model.AllSteps() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}
