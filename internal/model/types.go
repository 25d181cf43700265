package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// versionRegex accepts a dotted triple of non-negative integers (e.g., "2.8.3").
// Pre-release and build suffixes are deliberately rejected.
var versionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidateVersion checks that v has the X.Y.Z form required for every
// release. It must be called before any step is allowed to run.
func ValidateVersion(v string) error {
	if !versionRegex.MatchString(v) {
		return NewCLIError(ExitInvalidInput,
			fmt.Sprintf("invalid version %q: version must be in format X.Y.Z (e.g., 2.8.3)", v))
	}
	return nil
}

// StepName identifies one stage of the release pipeline.
// The names are the keys accepted by --steps.
type StepName string

const (
	// StepReadme rewrites the "version: X.Y.Z" line in README.md.
	StepReadme StepName = "readme"

	// StepAssemblies rewrites <AssemblyVersion>/<FileVersion> in every project descriptor.
	StepAssemblies StepName = "assemblies"

	// StepCommit stages, commits and pushes the version bump.
	StepCommit StepName = "commit"

	// StepPublish runs the build tool for every project.
	StepPublish StepName = "publish"

	// StepGitHub creates the archives and the remote release.
	StepGitHub StepName = "github"

	// StepDocker builds and pushes container images.
	StepDocker StepName = "docker"
)

// String returns the string representation of StepName.
func (s StepName) String() string {
	return string(s)
}

// AllSteps returns every step in full-run order.
// A new slice is returned on each call so callers may modify it.
func AllSteps() []StepName {
	return []StepName{StepReadme, StepAssemblies, StepCommit, StepPublish, StepGitHub, StepDocker}
}

// IsValid checks whether the StepName is one of the predefined steps.
func (s StepName) IsValid() bool {
	for _, known := range AllSteps() {
		if s == known {
			return true
		}
	}
	return false
}

// ReleaseBackend selects how the remote release is created.
type ReleaseBackend string

const (
	// BackendGH shells out to the GitHub CLI ("gh release create").
	BackendGH ReleaseBackend = "gh"

	// BackendAPI talks to the GitHub REST API directly.
	BackendAPI ReleaseBackend = "api"
)

// ParseReleaseBackend converts a string to a ReleaseBackend.
func ParseReleaseBackend(s string) (ReleaseBackend, error) {
	b := ReleaseBackend(strings.ToLower(s))
	switch b {
	case BackendGH, BackendAPI:
		return b, nil
	default:
		return "", fmt.Errorf("invalid release backend: %q (valid: gh, api)", s)
	}
}

// ContainerEngine selects how container images are built and pushed.
type ContainerEngine string

const (
	// EngineCLI shells out to the docker binary.
	EngineCLI ContainerEngine = "cli"

	// EngineAPI talks to the Docker daemon through the Engine SDK.
	EngineAPI ContainerEngine = "api"
)

// ParseContainerEngine converts a string to a ContainerEngine.
func ParseContainerEngine(s string) (ContainerEngine, error) {
	e := ContainerEngine(strings.ToLower(s))
	switch e {
	case EngineCLI, EngineAPI:
		return e, nil
	default:
		return "", fmt.Errorf("invalid container engine: %q (valid: cli, api)", s)
	}
}

// Default values for ReleaseConfig fields that the CLI exposes as flags.
const (
	DefaultDockerRegistry = "gnairooze"
	DefaultImageRepo      = "simple-hooks"
	DefaultRemote         = "origin"
	DefaultBranch         = "main"
	DefaultConfiguration  = "Release"
	DefaultRuntime        = "win-x64"
)

// ReleaseConfig holds everything a release run needs to know.
// It is immutable once the orchestrator has been constructed.
type ReleaseConfig struct {
	// Version is the new X.Y.Z version being released.
	Version string `json:"version"`

	// GitHubToken authorizes remote release creation. When empty the remote
	// release is skipped and only archives are produced.
	GitHubToken string `json:"-"`

	// DockerRegistry is the registry namespace images are pushed to
	// (e.g., a Docker Hub user name).
	DockerRegistry string `json:"dockerRegistry"`

	// ImageRepo is the repository name under DockerRegistry shared by all images.
	ImageRepo string `json:"imageRepo"`

	// RootPath is the repository root. README.md, code/, publish/ and
	// release/ are all resolved relative to it.
	RootPath string `json:"rootPath"`

	// Remote and Branch are the push target for the version bump commit.
	Remote string `json:"remote"`
	Branch string `json:"branch"`

	// Configuration and Runtime are passed to the build tool as -c and -r.
	Configuration string `json:"configuration"`
	Runtime       string `json:"runtime"`

	// ReleaseBackend and GitHubRepo select the release host. GitHubRepo
	// ("owner/name") is required only by BackendAPI.
	ReleaseBackend ReleaseBackend `json:"releaseBackend"`
	GitHubRepo     string         `json:"githubRepo,omitempty"`

	// Engine selects the container engine implementation.
	Engine ContainerEngine `json:"engine"`
}

// PublishPath is the root of all build outputs.
func (c *ReleaseConfig) PublishPath() string {
	return filepath.Join(c.RootPath, "publish")
}

// ReleasePath is the directory holding the versioned archives.
func (c *ReleaseConfig) ReleasePath() string {
	return filepath.Join(c.RootPath, "release")
}

// CodePath is the directory containing the project sources.
func (c *ReleaseConfig) CodePath() string {
	return filepath.Join(c.RootPath, "code")
}

// ReadmePath is the documentation file carrying the "version:" line.
func (c *ReleaseConfig) ReadmePath() string {
	return filepath.Join(c.RootPath, "README.md")
}

// ProjectEntry describes one sub-project taking part in the release.
type ProjectEntry struct {
	// Name is the unique project name, used for publish and archive paths.
	Name string `json:"name"`

	// Path is the absolute project source directory.
	Path string `json:"path"`

	// Descriptor is the project descriptor file name inside Path (e.g., "X.csproj").
	Descriptor string `json:"descriptor"`

	// ContainerTag is the image tag prefix. Empty means no image is built.
	ContainerTag string `json:"containerTag,omitempty"`
}

// DescriptorPath returns the absolute path of the project descriptor.
func (p *ProjectEntry) DescriptorPath() string {
	return filepath.Join(p.Path, p.Descriptor)
}

// HasContainer reports whether an image is built for this project.
func (p *ProjectEntry) HasContainer() bool {
	return p.ContainerTag != ""
}

// DefaultProjects returns the fixed project table rooted at codePath.
// There is no runtime creation or deletion of entries; filters may only
// narrow the returned set.
func DefaultProjects(codePath string) []ProjectEntry {
	entry := func(name, tag string) ProjectEntry {
		return ProjectEntry{
			Name:         name,
			Path:         filepath.Join(codePath, name),
			Descriptor:   name + ".csproj",
			ContainerTag: tag,
		}
	}
	return []ProjectEntry{
		entry("SimpleHooks.Web", "web"),
		entry("SimpleHooks.AuthApi", "authapi"),
		entry("SimpleHooks.Server", "proc"),
		// No Docker image for Assist.
		entry("SimpleHooks.Assist", ""),
	}
}

// PublishDir returns the build output directory for a project.
func PublishDir(cfg *ReleaseConfig, p *ProjectEntry) string {
	return filepath.Join(cfg.PublishPath(), p.Name)
}

// ArchivePath returns the versioned archive path for a project:
// <root>/release/<project>-<version>.zip.
func ArchivePath(cfg *ReleaseConfig, p *ProjectEntry) string {
	return filepath.Join(cfg.ReleasePath(), fmt.Sprintf("%s-%s.zip", p.Name, cfg.Version))
}

// ImageRefs returns the version and latest image references for a project,
// e.g. "gnairooze/simple-hooks:web-2.8.3" and "gnairooze/simple-hooks:web-latest".
func ImageRefs(cfg *ReleaseConfig, p *ProjectEntry) (versionRef, latestRef string) {
	base := cfg.DockerRegistry + "/" + cfg.ImageRepo
	versionRef = fmt.Sprintf("%s:%s-%s", base, p.ContainerTag, cfg.Version)
	latestRef = fmt.Sprintf("%s:%s-latest", base, p.ContainerTag)
	return versionRef, latestRef
}

// ExitCode defines the CLI exit codes. Scripts and CI systems can use
// them to tell input mistakes apart from tool failures.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidInput indicates a malformed version, filter or settings file.
	// Nothing has been executed when this code is returned.
	ExitInvalidInput ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitGitError indicates a git operation failed.
	ExitGitError ExitCode = 5

	// ExitBuildFailed indicates the build tool returned an error.
	ExitBuildFailed ExitCode = 8

	// ExitReleaseFailed indicates archive or remote release creation failed.
	ExitReleaseFailed ExitCode = 9

	// ExitImageFailed indicates a container image build or push failed
	// against a reachable engine.
	ExitImageFailed ExitCode = 10
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
