package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// Settings mirrors the flag surface of the root command. Empty fields
// mean "not set" and leave the built-in default in place.
type Settings struct {
	DockerRegistry string   `yaml:"docker_registry,omitempty" toml:"docker_registry,omitempty" json:"dockerRegistry,omitempty"`
	ImageRepo      string   `yaml:"image_repo,omitempty" toml:"image_repo,omitempty" json:"imageRepo,omitempty"`
	Root           string   `yaml:"root,omitempty" toml:"root,omitempty" json:"root,omitempty"`
	Remote         string   `yaml:"remote,omitempty" toml:"remote,omitempty" json:"remote,omitempty"`
	Branch         string   `yaml:"branch,omitempty" toml:"branch,omitempty" json:"branch,omitempty"`
	Configuration  string   `yaml:"configuration,omitempty" toml:"configuration,omitempty" json:"configuration,omitempty"`
	Runtime        string   `yaml:"runtime,omitempty" toml:"runtime,omitempty" json:"runtime,omitempty"`
	ReleaseBackend string   `yaml:"release_backend,omitempty" toml:"release_backend,omitempty" json:"releaseBackend,omitempty"`
	GitHubRepo     string   `yaml:"github_repo,omitempty" toml:"github_repo,omitempty" json:"githubRepo,omitempty"`
	Engine         string   `yaml:"engine,omitempty" toml:"engine,omitempty" json:"engine,omitempty"`
	Filter         string   `yaml:"filter,omitempty" toml:"filter,omitempty" json:"filter,omitempty"`
	Steps          []string `yaml:"steps,omitempty" toml:"steps,omitempty" json:"steps,omitempty"`
}

// Load reads and validates the settings file at path.
//
// A missing or unreadable file, an unknown extension, a parse error and an
// invalid backend or step name are all reported as model.CLIError with
// ExitInvalidInput.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.NewCLIError(model.ExitInvalidInput,
				fmt.Sprintf("settings file not found: %s", path))
		}
		return nil, model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("could not read settings file %s", path), err)
	}

	s, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("invalid settings file %s", path), err)
	}
	return s, nil
}

// Parse decodes data according to ext (".yaml", ".yml", ".toml", ".json"
// or ".jsonc") and validates the result.
func Parse(ext string, data []byte) (*Settings, error) {
	var s Settings
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("could not unmarshal YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("could not unmarshal TOML: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
			return nil, fmt.Errorf("could not unmarshal JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported settings format %q (use .yaml, .yml, .toml, .json or .jsonc)", ext)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if s.ReleaseBackend != "" {
		if _, err := model.ParseReleaseBackend(s.ReleaseBackend); err != nil {
			return err
		}
	}
	if s.Engine != "" {
		if _, err := model.ParseContainerEngine(s.Engine); err != nil {
			return err
		}
	}
	// Steps are not checked here: like --steps, unknown names reach
	// RunPartial, which logs and skips them.
	return nil
}

// ApplyTo copies every non-empty setting onto cfg. It does not touch
// Version or GitHubToken; the token is never read from a file. Root and
// Steps are left to the caller: Root is relative to the settings file and
// Steps is not part of ReleaseConfig.
func (s *Settings) ApplyTo(cfg *model.ReleaseConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.DockerRegistry, s.DockerRegistry)
	set(&cfg.ImageRepo, s.ImageRepo)
	set(&cfg.Remote, s.Remote)
	set(&cfg.Branch, s.Branch)
	set(&cfg.Configuration, s.Configuration)
	set(&cfg.Runtime, s.Runtime)
	set(&cfg.GitHubRepo, s.GitHubRepo)

	// Values were checked in validate.
	if b, err := model.ParseReleaseBackend(s.ReleaseBackend); err == nil {
		cfg.ReleaseBackend = b
	}
	if e, err := model.ParseContainerEngine(s.Engine); err == nil {
		cfg.Engine = e
	}
}
