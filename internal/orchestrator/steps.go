package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shinji-kodama/release-automation/internal/archive"
	"github.com/shinji-kodama/release-automation/internal/docker"
	"github.com/shinji-kodama/release-automation/internal/dotnet"
	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/release"
	"github.com/shinji-kodama/release-automation/internal/versionfile"
)

// UpdateVersionInFile rewrites the version markers in path. A missing
// file is logged as a warning and is not an error.
func (o *Orchestrator) UpdateVersionInFile(path, version string) error {
	o.log.Info("updating version", "path", path, "version", version)

	outcome, err := versionfile.Update(path, version)
	if err != nil {
		return err
	}
	if outcome == versionfile.Missing {
		o.log.Warn("file does not exist", "path", path)
		return nil
	}
	o.log.Info("updated file", "path", path, "outcome", outcome)
	return nil
}

// UpdateReadme rewrites the "version:" line of README.md.
func (o *Orchestrator) UpdateReadme(_ context.Context) error {
	return o.UpdateVersionInFile(o.cfg.ReadmePath(), o.cfg.Version)
}

// UpdateAssemblyVersions rewrites the assembly and file versions of
// every project descriptor.
func (o *Orchestrator) UpdateAssemblyVersions(_ context.Context) error {
	for i := range o.projects {
		if err := o.UpdateVersionInFile(o.projects[i].DescriptorPath(), o.cfg.Version); err != nil {
			return err
		}
	}
	return nil
}

// CommitAndPush stages everything, commits the version bump and pushes
// it. Git failures are logged and do not fail the step.
func (o *Orchestrator) CommitAndPush(ctx context.Context) error {
	if current, err := o.deps.Git.CurrentBranch(ctx); err == nil && current != o.cfg.Branch {
		o.log.Warn("current branch differs from push target",
			"current", current, "remote", o.cfg.Remote, "branch", o.cfg.Branch)
	}

	err := o.commitAndPush(ctx)
	if err != nil {
		o.log.Warn("git operations failed", "error", err)
		o.log.Warn("you may need to commit and push the changes manually")
		return nil
	}

	fmt.Fprintf(o.out, "Successfully committed and pushed version %s to %s/%s\n",
		o.cfg.Version, o.cfg.Remote, o.cfg.Branch)
	return nil
}

func (o *Orchestrator) commitAndPush(ctx context.Context) error {
	if err := o.deps.Git.AddAll(ctx); err != nil {
		return err
	}
	if err := o.deps.Git.Commit(ctx, fmt.Sprintf("Update version to %s", o.cfg.Version)); err != nil {
		return err
	}
	return o.deps.Git.Push(ctx, o.cfg.Remote, o.cfg.Branch)
}

// PublishProjects publishes every project into <root>/publish/<name>.
// The first failure aborts the step.
func (o *Orchestrator) PublishProjects(ctx context.Context) error {
	if err := os.MkdirAll(o.cfg.PublishPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create publish directory: %w", err)
	}

	for i := range o.projects {
		p := &o.projects[i]
		fmt.Fprintf(o.out, "\nPublishing %s...\n", p.Name)

		outDir := model.PublishDir(&o.cfg, p)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create publish directory for %s: %w", p.Name, err)
		}

		err := o.deps.Publisher.Publish(ctx, dotnet.PublishRequest{
			ProjectFile:   p.DescriptorPath(),
			OutputDir:     outDir,
			Configuration: o.cfg.Configuration,
			Runtime:       o.cfg.Runtime,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateCompressedArchives zips each project's publish directory into
// <root>/release/<name>-<version>.zip and returns the archives written.
// Projects that were never published are skipped with a warning.
func (o *Orchestrator) CreateCompressedArchives(ctx context.Context) ([]string, error) {
	fmt.Fprintln(o.out, "Creating compressed files...")

	if err := os.MkdirAll(o.cfg.ReleasePath(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create release directory: %w", err)
	}

	var written []string
	for i := range o.projects {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		p := &o.projects[i]
		src := model.PublishDir(&o.cfg, p)
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			o.log.Warn("published files not found", "project", p.Name, "path", src)
			continue
		}

		dst := model.ArchivePath(&o.cfg, p)
		fmt.Fprintf(o.out, "Creating %s\n", dst)

		n, err := archive.ZipDir(src, dst)
		if err != nil {
			return written, err
		}
		o.log.Debug("archive written", "project", p.Name, "path", dst, "files", n)
		written = append(written, dst)
	}
	return written, nil
}

// CreateRemoteRelease produces the archives and, when a token is
// configured, creates the release with every existing archive attached.
// A release host failure is logged and does not fail the step.
func (o *Orchestrator) CreateRemoteRelease(ctx context.Context) error {
	if _, err := o.CreateCompressedArchives(ctx); err != nil {
		return err
	}

	if o.cfg.GitHubToken == "" || o.deps.Host == nil {
		o.log.Warn("no GitHub token provided, skipping GitHub release creation")
		o.log.Warn("please create the release manually and upload the compressed files",
			"dir", o.cfg.ReleasePath())
		return nil
	}

	var assets []string
	for i := range o.projects {
		path := model.ArchivePath(&o.cfg, &o.projects[i])
		if _, err := os.Stat(path); err == nil {
			assets = append(assets, path)
		}
	}

	rel := release.ForVersion(o.cfg.Version, assets)
	if err := o.deps.Host.Create(ctx, rel); err != nil {
		o.log.Error("failed to create GitHub release", "tag", rel.Tag, "error", err)
		return nil
	}

	fmt.Fprintf(o.out, "Created release %s with %d asset(s)\n", rel.Tag, len(assets))
	return nil
}

// DockerBuildAndPush builds and pushes the version and latest images of
// every project that has a container tag and a Dockerfile. A failure for
// one project is logged and the next project proceeds.
func (o *Orchestrator) DockerBuildAndPush(ctx context.Context) error {
	for i := range o.projects {
		if err := ctx.Err(); err != nil {
			return err
		}

		p := &o.projects[i]
		if !p.HasContainer() {
			o.log.Info("skipping Docker operations (no Docker configuration)", "project", p.Name)
			continue
		}

		fmt.Fprintf(o.out, "\nProcessing Docker operations for %s...\n", p.Name)

		dockerfile := filepath.Join(p.Path, "Dockerfile")
		if _, err := os.Stat(dockerfile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				o.log.Warn("Dockerfile not found", "project", p.Name, "path", dockerfile)
			} else {
				o.log.Warn("cannot read Dockerfile", "project", p.Name, "error", err)
			}
			continue
		}

		if err := o.buildAndPush(ctx, p); err != nil {
			o.log.Error("Docker operations failed", "project", p.Name, "error", err)
			o.log.Error("make sure Docker is running and you're logged in to the registry")
		}
	}
	return nil
}

func (o *Orchestrator) buildAndPush(ctx context.Context, p *model.ProjectEntry) error {
	if o.deps.Engine == nil {
		return errors.New("no container engine configured")
	}

	versionRef, latestRef := model.ImageRefs(&o.cfg, p)
	err := o.deps.Engine.Build(ctx, docker.BuildRequest{
		ContextDir: p.Path,
		Tags:       []string{versionRef, latestRef},
		Labels:     docker.BuildLabels(&o.cfg, p, o.deps.Now()),
	})
	if err != nil {
		return err
	}

	for _, ref := range []string{versionRef, latestRef} {
		if err := o.deps.Engine.Push(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
