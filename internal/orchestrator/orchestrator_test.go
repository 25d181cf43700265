package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/release-automation/internal/docker"
	"github.com/shinji-kodama/release-automation/internal/dotnet"
	"github.com/shinji-kodama/release-automation/internal/filter"
	"github.com/shinji-kodama/release-automation/internal/git"
	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/release"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

const csprojTemplate = `<Project Sdk="Microsoft.NET.Sdk.Web">
  <PropertyGroup>
    <TargetFramework>net8.0</TargetFramework>
    <AssemblyVersion>1.0.0</AssemblyVersion>
    <FileVersion>1.0.0</FileVersion>
  </PropertyGroup>
</Project>
`

// fakeHost records releases and optionally fails.
type fakeHost struct {
	mu       sync.Mutex
	releases []release.Release
	err      error
}

func (h *fakeHost) Create(_ context.Context, rel release.Release) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases = append(h.releases, rel)
	return h.err
}

// fakeEngine records builds and pushes. failBuild makes Build fail for
// context directories ending with the given suffix.
type fakeEngine struct {
	mu        sync.Mutex
	builds    []docker.BuildRequest
	pushes    []string
	failBuild string
}

func (e *fakeEngine) Build(_ context.Context, req docker.BuildRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds = append(e.builds, req)
	if e.failBuild != "" && strings.HasSuffix(req.ContextDir, e.failBuild) {
		return errors.New("build failed")
	}
	return nil
}

func (e *fakeEngine) Push(_ context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushes = append(e.pushes, ref)
	return nil
}

type fixture struct {
	root     string
	cfg      model.ReleaseConfig
	projects []model.ProjectEntry
	run      *runner.Fake
	host     *fakeHost
	engine   *fakeEngine
	logs     *bytes.Buffer
	out      *bytes.Buffer
}

// newFixture lays out a repository with README.md, the four project
// descriptors and a Dockerfile for every project with a container tag.
// The fake runner answers `dotnet publish` by writing files into the
// output directory.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"),
		[]byte("# SimpleHooks\n\nversion: 1.0.0\n"), 0o644))

	projects := model.DefaultProjects(filepath.Join(root, "code"))
	for _, p := range projects {
		require.NoError(t, os.MkdirAll(p.Path, 0o755))
		require.NoError(t, os.WriteFile(p.DescriptorPath(), []byte(csprojTemplate), 0o644))
		if p.HasContainer() {
			require.NoError(t, os.WriteFile(filepath.Join(p.Path, "Dockerfile"), []byte("FROM scratch\n"), 0o644))
		}
	}

	run := runner.NewFake()
	run.Handler = func(cmd runner.Command) (runner.Result, error) {
		switch {
		case cmd.Name == "dotnet":
			out := cmd.Args[len(cmd.Args)-1]
			if err := os.MkdirAll(filepath.Join(out, "runtimes"), 0o755); err != nil {
				return runner.Result{}, err
			}
			if err := os.WriteFile(filepath.Join(out, "app.dll"), []byte("dll"), 0o644); err != nil {
				return runner.Result{}, err
			}
			if err := os.WriteFile(filepath.Join(out, "runtimes", "native.dll"), []byte("native"), 0o644); err != nil {
				return runner.Result{}, err
			}
		case cmd.Name == "git" && len(cmd.Args) > 2 && cmd.Args[2] == "rev-parse":
			return runner.Result{Stdout: "main\n"}, nil
		}
		return runner.Result{}, nil
	}

	return &fixture{
		root: root,
		cfg: model.ReleaseConfig{
			Version:        "2.8.3",
			GitHubToken:    "token",
			DockerRegistry: model.DefaultDockerRegistry,
			ImageRepo:      model.DefaultImageRepo,
			RootPath:       root,
			Remote:         model.DefaultRemote,
			Branch:         model.DefaultBranch,
			ReleaseBackend: model.BackendGH,
			Engine:         model.EngineCLI,
		},
		projects: projects,
		run:      run,
		host:     &fakeHost{},
		engine:   &fakeEngine{},
		logs:     &bytes.Buffer{},
		out:      &bytes.Buffer{},
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(f.cfg, f.projects, Deps{
		Git:       git.NewClient(f.root, f.run),
		Publisher: dotnet.NewPublisher(f.run),
		Host:      f.host,
		Engine:    f.engine,
		Logger:    slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Out:       f.out,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) archiveNames() []string {
	entries, err := os.ReadDir(filepath.Join(f.root, "release"))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestNew_RejectsInvalidVersion(t *testing.T) {
	for _, v := range []string{"", "2.8", "2.8.3.1", "v2.8.3", "2.8.x", "2.8.3-beta", " 2.8.3"} {
		t.Run(v, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Version = v

			_, err := New(f.cfg, f.projects, Deps{Git: git.NewClient(f.root, f.run)})

			var cliErr *model.CLIError
			require.ErrorAs(t, err, &cliErr)
			assert.Equal(t, model.ExitInvalidInput, cliErr.Code)
			assert.Empty(t, f.run.Calls(), "no command may run for an invalid version")
		})
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	o, err := New(model.ReleaseConfig{Version: "1.2.3"}, nil, Deps{})
	require.NoError(t, err)

	cfg := o.Config()
	assert.Equal(t, model.DefaultConfiguration, cfg.Configuration)
	assert.Equal(t, model.DefaultRuntime, cfg.Runtime)
	assert.Equal(t, model.DefaultRemote, cfg.Remote)
	assert.Equal(t, model.DefaultBranch, cfg.Branch)
	assert.Equal(t, model.DefaultImageRepo, cfg.ImageRepo)
	assert.Equal(t, model.DefaultDockerRegistry, cfg.DockerRegistry)
}

func TestUpdateVersionInFile(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	t.Run("descriptor", func(t *testing.T) {
		path := f.projects[0].DescriptorPath()
		require.NoError(t, o.UpdateVersionInFile(path, "2.8.3"))

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		want := strings.ReplaceAll(csprojTemplate, "1.0.0", "2.8.3")
		assert.Equal(t, want, string(got))
	})

	t.Run("readme without version line", func(t *testing.T) {
		path := filepath.Join(f.root, "docs", "README.md")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		content := "# Docs\n\nNo release marker here.\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		require.NoError(t, o.UpdateVersionInFile(path, "2.8.3"))

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, string(got))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("missing file", func(t *testing.T) {
		require.NoError(t, o.UpdateVersionInFile(filepath.Join(f.root, "nope.csproj"), "2.8.3"))
		assert.Contains(t, f.logs.String(), "file does not exist")
	})
}

func TestRunFull(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	require.NoError(t, o.RunFull(context.Background()))

	readme, err := os.ReadFile(filepath.Join(f.root, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "version: 2.8.3")

	for _, p := range f.projects {
		data, err := os.ReadFile(p.DescriptorPath())
		require.NoError(t, err)
		assert.Contains(t, string(data), "<AssemblyVersion>2.8.3</AssemblyVersion>")
		assert.Contains(t, string(data), "<FileVersion>2.8.3</FileVersion>")
	}

	lines := f.run.CommandLines()
	gitPrefix := "git -C " + f.root + " "
	require.GreaterOrEqual(t, len(lines), 8)
	assert.Equal(t, gitPrefix+"rev-parse --abbrev-ref HEAD", lines[0])
	assert.Equal(t, gitPrefix+"add .", lines[1])
	assert.Equal(t, gitPrefix+"commit -m Update version to 2.8.3", lines[2])
	assert.Equal(t, gitPrefix+"push origin main", lines[3])

	publishes := f.run.CallsTo("dotnet")
	require.Len(t, publishes, 4)
	assert.Equal(t, []string{
		"publish", f.projects[0].DescriptorPath(),
		"-c", "Release", "-r", "win-x64", "--self-contained", "true",
		"-o", filepath.Join(f.root, "publish", "SimpleHooks.Web"),
	}, publishes[0].Args)

	assert.Equal(t, []string{
		"SimpleHooks.Assist-2.8.3.zip",
		"SimpleHooks.AuthApi-2.8.3.zip",
		"SimpleHooks.Server-2.8.3.zip",
		"SimpleHooks.Web-2.8.3.zip",
	}, f.archiveNames())

	require.Len(t, f.host.releases, 1)
	rel := f.host.releases[0]
	assert.Equal(t, "2.8.3", rel.Tag)
	assert.Equal(t, "Release 2.8.3", rel.Title)
	assert.Equal(t, "Release version 2.8.3", rel.Notes)
	assert.Len(t, rel.Assets, 4)

	require.Len(t, f.engine.builds, 3)
	assert.Equal(t, []string{
		"gnairooze/simple-hooks:web-2.8.3",
		"gnairooze/simple-hooks:web-latest",
	}, f.engine.builds[0].Tags)
	assert.Equal(t, "SimpleHooks.Web", f.engine.builds[0].Labels[docker.LabelProject])
	assert.Equal(t, "2026-03-01T00:00:00Z", f.engine.builds[0].Labels[docker.LabelOCICreated])
	assert.Equal(t, []string{
		"gnairooze/simple-hooks:web-2.8.3",
		"gnairooze/simple-hooks:web-latest",
		"gnairooze/simple-hooks:authapi-2.8.3",
		"gnairooze/simple-hooks:authapi-latest",
		"gnairooze/simple-hooks:proc-2.8.3",
		"gnairooze/simple-hooks:proc-latest",
	}, f.engine.pushes)

	out := f.out.String()
	assert.Contains(t, out, "Starting full release process for version 2.8.3")
	assert.Contains(t, out, "=== Publishing projects for win-x64 ===")
	assert.Contains(t, out, "Release 2.8.3 completed successfully!")
	assert.Contains(t, out, "Next steps:")
}

func TestRunFull_ArchiveContents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orchestrator(t).RunFull(context.Background()))

	zr, err := zip.OpenReader(filepath.Join(f.root, "release", "SimpleHooks.Web-2.8.3.zip"))
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
		assert.Equal(t, zip.Deflate, zf.Method)
	}
	assert.ElementsMatch(t, []string{"app.dll", "runtimes/native.dll"}, names)
}

func TestRunFull_PublishFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.run.FailOn("dotnet publish "+f.projects[1].DescriptorPath(), errors.New("compile error"))
	o := f.orchestrator(t)

	err := o.RunFull(context.Background())

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitBuildFailed, cliErr.Code)

	assert.Len(t, f.run.CallsTo("dotnet"), 2, "publishing stops at the failing project")
	assert.Empty(t, f.archiveNames(), "no archive is created after a publish failure")
	assert.Empty(t, f.host.releases)
	assert.Empty(t, f.engine.builds)
	assert.Contains(t, f.out.String(), "Release process failed")
}

func TestRunFull_GitFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.run.FailOn("git -C "+f.root+" push", errors.New("rejected"))
	o := f.orchestrator(t)

	require.NoError(t, o.RunFull(context.Background()))

	assert.Contains(t, f.logs.String(), "git operations failed")
	assert.Len(t, f.run.CallsTo("dotnet"), 4)
	assert.Len(t, f.host.releases, 1)
	assert.Len(t, f.engine.builds, 3)
}

func TestCommitAndPush_WarnsOnBranchMismatch(t *testing.T) {
	f := newFixture(t)
	f.run.Handler = func(cmd runner.Command) (runner.Result, error) {
		if len(cmd.Args) > 2 && cmd.Args[2] == "rev-parse" {
			return runner.Result{Stdout: "feature/x\n"}, nil
		}
		return runner.Result{}, nil
	}

	require.NoError(t, f.orchestrator(t).CommitAndPush(context.Background()))
	assert.Contains(t, f.logs.String(), "current branch differs from push target")
}

func TestCreateRemoteRelease_NoToken(t *testing.T) {
	f := newFixture(t)
	f.cfg.GitHubToken = ""
	o := f.orchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.PublishProjects(ctx))
	require.NoError(t, o.CreateRemoteRelease(ctx))

	assert.Len(t, f.archiveNames(), 4, "archives are produced even without a token")
	assert.Empty(t, f.host.releases, "no release host call without a token")
	assert.Contains(t, f.logs.String(), "no GitHub token provided")
}

func TestCreateRemoteRelease_HostFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.host.err = model.NewCLIError(model.ExitReleaseFailed, "gh CLI not found")
	o := f.orchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.PublishProjects(ctx))
	require.NoError(t, o.CreateRemoteRelease(ctx))

	assert.Len(t, f.host.releases, 1, "release creation is attempted once")
	assert.Contains(t, f.logs.String(), "failed to create GitHub release")
}

func TestCreateCompressedArchives_SkipsUnpublished(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "publish", "SimpleHooks.Server"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "publish", "SimpleHooks.Server", "proc.dll"), nil, 0o644))

	written, err := o.CreateCompressedArchives(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(f.root, "release", "SimpleHooks.Server-2.8.3.zip")}, written)
	assert.Equal(t, 3, strings.Count(f.logs.String(), "published files not found"))
}

func TestDockerBuildAndPush_FailureContinues(t *testing.T) {
	f := newFixture(t)
	f.engine.failBuild = "SimpleHooks.Web"
	o := f.orchestrator(t)

	require.NoError(t, o.DockerBuildAndPush(context.Background()))

	assert.Len(t, f.engine.builds, 3, "the next project is built after a failure")
	assert.Equal(t, []string{
		"gnairooze/simple-hooks:authapi-2.8.3",
		"gnairooze/simple-hooks:authapi-latest",
		"gnairooze/simple-hooks:proc-2.8.3",
		"gnairooze/simple-hooks:proc-latest",
	}, f.engine.pushes)
	assert.Contains(t, f.logs.String(), "Docker operations failed")
	assert.Contains(t, f.logs.String(), "no Docker configuration")
}

func TestDockerBuildAndPush_MissingDockerfile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.projects[1].Path, "Dockerfile")))
	o := f.orchestrator(t)

	require.NoError(t, o.DockerBuildAndPush(context.Background()))

	assert.Len(t, f.engine.builds, 2)
	assert.Contains(t, f.logs.String(), "Dockerfile not found")
}

func TestRunPartial(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	require.NoError(t, o.RunPartial(context.Background(), []string{"assemblies", "deploy", "readme"}))

	logs := f.logs.String()
	assert.Contains(t, logs, "unknown step")
	assert.Contains(t, logs, "step=deploy")
	assert.Contains(t, logs, "readme, assemblies, commit, publish, github, docker")

	out := f.out.String()
	assemblies := strings.Index(out, "=== Updating assembly versions ===")
	readme := strings.Index(out, "=== Setting new version to 2.8.3 ===")
	require.NotEqual(t, -1, assemblies)
	require.NotEqual(t, -1, readme)
	assert.Less(t, assemblies, readme, "steps run in the order given")

	assert.Empty(t, f.run.Calls(), "no external command for file-only steps")
	assert.Empty(t, f.engine.builds)
}

func TestRunPartial_ErrorStops(t *testing.T) {
	f := newFixture(t)
	f.run.FailOn("dotnet", errors.New("sdk missing"))
	o := f.orchestrator(t)

	err := o.RunPartial(context.Background(), []string{"publish", "docker"})
	require.Error(t, err)
	assert.Empty(t, f.engine.builds)
}

func TestFilterRestrictsAllSteps(t *testing.T) {
	f := newFixture(t)
	flt, err := filter.New(`has_container && name != "SimpleHooks.Web"`)
	require.NoError(t, err)
	f.projects, err = flt.Apply(f.projects)
	require.NoError(t, err)

	require.NoError(t, f.orchestrator(t).RunFull(context.Background()))

	web, err := os.ReadFile(filepath.Join(f.root, "code", "SimpleHooks.Web", "SimpleHooks.Web.csproj"))
	require.NoError(t, err)
	assert.Contains(t, string(web), "<AssemblyVersion>1.0.0</AssemblyVersion>", "filtered project is untouched")

	assert.Len(t, f.run.CallsTo("dotnet"), 2)
	assert.Equal(t, []string{"SimpleHooks.AuthApi-2.8.3.zip", "SimpleHooks.Server-2.8.3.zip"}, f.archiveNames())
	require.Len(t, f.host.releases, 1)
	assert.Len(t, f.host.releases[0].Assets, 2)
	assert.Len(t, f.engine.builds, 2)
}

func TestRunFull_CanceledContext(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.RunFull(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.run.Calls())
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	plan := o.Plan(nil)
	assert.Equal(t, "2.8.3", plan.Version)
	assert.Equal(t, []string{"readme", "assemblies", "commit", "publish", "github", "docker"}, plan.Steps)
	require.Len(t, plan.Projects, 4)
	assert.Equal(t, filepath.Join(f.root, "release", "SimpleHooks.Web-2.8.3.zip"), plan.Projects[0].Archive)
	assert.Equal(t, []string{
		"gnairooze/simple-hooks:web-2.8.3",
		"gnairooze/simple-hooks:web-latest",
	}, plan.Projects[0].Images)
	assert.Empty(t, plan.Projects[3].Images, "Assist has no image")

	assert.Equal(t, []string{"docker"}, o.Plan([]string{"docker"}).Steps)

	assert.Empty(t, f.run.Calls())
	_, err := os.Stat(filepath.Join(f.root, "publish"))
	assert.True(t, os.IsNotExist(err), "planning has no side effects")
}
