package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/release-automation/internal/config"
	"github.com/shinji-kodama/release-automation/internal/docker"
	"github.com/shinji-kodama/release-automation/internal/dotnet"
	"github.com/shinji-kodama/release-automation/internal/filter"
	"github.com/shinji-kodama/release-automation/internal/git"
	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/orchestrator"
	"github.com/shinji-kodama/release-automation/internal/release"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

// envGitHubToken is read when --github-token is not given.
const envGitHubToken = "GITHUB_TOKEN"

// invalidVersionMessage is printed for a malformed <version> argument.
const invalidVersionMessage = "Version must be in format X.Y.Z (e.g., 2.8.3)"

// newRunner creates the process runner for a release. Tests replace it
// with a runner.Fake.
var newRunner = func(logger *slog.Logger) runner.Runner {
	return runner.NewExec(logger)
}

// newAPIEngine connects to the Docker daemon for --engine api. Tests
// replace it to avoid needing a daemon.
var newAPIEngine = func(progress io.Writer) (docker.Engine, func() error, error) {
	c, err := docker.NewClient()
	if err != nil {
		return nil, nil, err
	}
	return docker.NewAPIEngine(c, progress), c.Close, nil
}

// releaseFlags holds the flag values of the root (release) command.
type releaseFlags struct {
	githubToken    string
	dockerRegistry string
	imageRepo      string
	remote         string
	branch         string
	configuration  string
	runtime        string
	releaseBackend string
	githubRepo     string
	engine         string
	filter         string
	configFile     string
	steps          []string
	dryRun         bool
}

func (f *releaseFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.githubToken, "github-token", "", "GitHub token for release creation (default: $GITHUB_TOKEN)")
	fs.StringVar(&f.dockerRegistry, "docker-registry", model.DefaultDockerRegistry, "Docker registry username")
	fs.StringVar(&f.imageRepo, "image-repo", model.DefaultImageRepo, "Image repository under the registry")
	fs.StringVar(&f.remote, "remote", model.DefaultRemote, "Git remote to push the version bump to")
	fs.StringVar(&f.branch, "branch", model.DefaultBranch, "Branch to push the version bump to")
	fs.StringVar(&f.configuration, "configuration", model.DefaultConfiguration, "Build configuration passed to dotnet publish")
	fs.StringVar(&f.runtime, "runtime", model.DefaultRuntime, "Runtime identifier passed to dotnet publish")
	fs.StringVar(&f.releaseBackend, "release-backend", string(model.BackendGH), "Release backend: gh or api")
	fs.StringVar(&f.githubRepo, "github-repo", "", "GitHub repository (owner/name), required by --release-backend api")
	fs.StringVar(&f.engine, "engine", string(model.EngineCLI), "Container engine: cli or api")
	fs.StringVar(&f.filter, "filter", "", "CEL expression selecting projects (e.g. 'has_container')")
	fs.StringVar(&f.configFile, "config", "", "Settings file (.yaml, .yml, .toml, .json, .jsonc)")
	fs.StringSliceVar(&f.steps, "steps", nil, "Steps to run, repeated or comma-separated (default: all)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Show what would be done without executing")
}

// releaseRun is the resolved input of one release invocation.
type releaseRun struct {
	cfg      model.ReleaseConfig
	projects []model.ProjectEntry
	steps    []string
}

// resolveRelease merges built-in defaults, the settings file and
// explicitly set flags (in increasing precedence), then applies the
// project filter. Every input error is reported before any step runs.
func resolveRelease(cmd *cobra.Command, version string, f *releaseFlags) (*releaseRun, error) {
	if err := model.ValidateVersion(version); err != nil {
		return nil, model.NewCLIError(model.ExitInvalidInput, invalidVersionMessage)
	}

	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}

	cfg := model.ReleaseConfig{
		Version:        version,
		DockerRegistry: model.DefaultDockerRegistry,
		ImageRepo:      model.DefaultImageRepo,
		RootPath:       root,
		Remote:         model.DefaultRemote,
		Branch:         model.DefaultBranch,
		Configuration:  model.DefaultConfiguration,
		Runtime:        model.DefaultRuntime,
		ReleaseBackend: model.BackendGH,
		Engine:         model.EngineCLI,
	}
	filterExpr := ""
	var steps []string

	if f.configFile != "" {
		s, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		s.ApplyTo(&cfg)
		filterExpr = s.Filter
		steps = s.Steps
		if !cmd.Flags().Changed("root") && s.Root != "" {
			if cfg.RootPath, err = resolveSettingsRoot(f.configFile, s.Root); err != nil {
				return nil, err
			}
		}
	}

	changed := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	changed("docker-registry", &cfg.DockerRegistry, f.dockerRegistry)
	changed("image-repo", &cfg.ImageRepo, f.imageRepo)
	changed("remote", &cfg.Remote, f.remote)
	changed("branch", &cfg.Branch, f.branch)
	changed("configuration", &cfg.Configuration, f.configuration)
	changed("runtime", &cfg.Runtime, f.runtime)
	changed("github-repo", &cfg.GitHubRepo, f.githubRepo)
	changed("filter", &filterExpr, f.filter)

	if cmd.Flags().Changed("release-backend") {
		b, err := model.ParseReleaseBackend(f.releaseBackend)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput, "invalid --release-backend", err)
		}
		cfg.ReleaseBackend = b
	}
	if cmd.Flags().Changed("engine") {
		e, err := model.ParseContainerEngine(f.engine)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput, "invalid --engine", err)
		}
		cfg.Engine = e
	}
	if cmd.Flags().Changed("steps") {
		steps = f.steps
	}

	cfg.GitHubToken = f.githubToken
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv(envGitHubToken)
	}

	if cfg.ReleaseBackend == model.BackendAPI && cfg.GitHubToken != "" {
		if _, _, err := release.ParseRepoSlug(cfg.GitHubRepo); err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput,
				"--github-repo owner/name is required by --release-backend api", err)
		}
	}

	flt, err := filter.New(filterExpr)
	if err != nil {
		return nil, err
	}
	projects, err := flt.Apply(model.DefaultProjects(cfg.CodePath()))
	if err != nil {
		return nil, err
	}

	return &releaseRun{cfg: cfg, projects: projects, steps: cleanSteps(steps)}, nil
}

// resolveSettingsRoot resolves a root taken from a settings file. A
// relative root is relative to the directory holding the file.
func resolveSettingsRoot(configFile, root string) (string, error) {
	if !filepath.IsAbs(root) {
		root = filepath.Join(filepath.Dir(configFile), root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", model.WrapCLIError(model.ExitInvalidInput, fmt.Sprintf("invalid root %q in %s", root, configFile), err)
	}
	return abs, nil
}

// cleanSteps trims whitespace and drops empty names so "--steps a,,b"
// and "--steps ' a'" behave like "--steps a,b".
func cleanSteps(steps []string) []string {
	var out []string
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// runsDocker reports whether the docker step is part of steps (an empty
// list means the full pipeline).
func runsDocker(steps []string) bool {
	if len(steps) == 0 {
		return true
	}
	for _, s := range steps {
		if s == model.StepDocker.String() {
			return true
		}
	}
	return false
}

func runRelease(cmd *cobra.Command, version string, f *releaseFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := resolveRelease(cmd, version, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr(), verbose)
	r := newRunner(logger)

	deps := orchestrator.Deps{
		Git:       git.NewClient(run.cfg.RootPath, r),
		Publisher: dotnet.NewPublisher(r),
		Logger:    logger,
		Out:       out,
	}

	if !f.dryRun {
		host, err := newReleaseHost(run.cfg, r)
		if err != nil {
			return err
		}
		deps.Host = host

		if runsDocker(run.steps) {
			engine, closeFn, err := newEngine(run.cfg, r, cmd.ErrOrStderr())
			if err != nil {
				// Image failures never abort a release; the docker step
				// logs each project it cannot build.
				logger.Warn("container engine unavailable", "engine", run.cfg.Engine, "error", err)
			} else {
				deps.Engine = engine
				if closeFn != nil {
					defer func() { _ = closeFn() }()
				}
			}
		}
	}

	o, err := orchestrator.New(run.cfg, run.projects, deps)
	if err != nil {
		return err
	}

	if f.dryRun {
		return printPlan(out, o.Plan(run.steps), len(run.steps) == 0)
	}

	if len(run.steps) == 0 {
		return o.RunFull(ctx)
	}
	return o.RunPartial(ctx, run.steps)
}

// newReleaseHost returns nil when no token is configured.
func newReleaseHost(cfg model.ReleaseConfig, r runner.Runner) (release.Host, error) {
	if cfg.GitHubToken == "" {
		return nil, nil
	}
	switch cfg.ReleaseBackend {
	case model.BackendAPI:
		return release.NewAPIHost(cfg.GitHubToken, cfg.GitHubRepo)
	default:
		return release.NewGHHost(r, cfg.RootPath, cfg.GitHubToken), nil
	}
}

func newEngine(cfg model.ReleaseConfig, r runner.Runner, progress io.Writer) (docker.Engine, func() error, error) {
	if cfg.Engine == model.EngineAPI {
		return newAPIEngine(progress)
	}
	return docker.NewCLIEngine(r), nil, nil
}

// printPlan writes the dry-run plan as text or JSON.
func printPlan(w io.Writer, plan orchestrator.Plan, all bool) error {
	if jsonOutput {
		return printJSON(w, struct {
			DryRun bool `json:"dryRun"`
			orchestrator.Plan
		}{true, plan})
	}

	steps := "all"
	if !all {
		steps = strings.Join(plan.Steps, ", ")
	}
	fmt.Fprintf(w, "DRY RUN: Would execute release process for version %s\n", plan.Version)
	fmt.Fprintf(w, "Steps: %s\n", steps)
	if len(plan.Projects) == 0 {
		fmt.Fprintln(w, "Projects: none match the filter")
		return nil
	}
	fmt.Fprintln(w, "Projects:")
	for _, p := range plan.Projects {
		fmt.Fprintf(w, "  %s\n", p.Name)
		fmt.Fprintf(w, "    archive: %s\n", p.Archive)
		if len(p.Images) > 0 {
			fmt.Fprintf(w, "    images:  %s\n", strings.Join(p.Images, ", "))
		}
	}
	return nil
}
