package release

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v63/github"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// APIHost creates releases through the GitHub REST API.
type APIHost struct {
	client *github.Client
	owner  string
	repo   string
}

// APIOption customizes an APIHost.
type APIOption func(*github.Client) error

// WithBaseURL points the client at a different API root (GitHub Enterprise
// or a test server). The same root is used for asset uploads.
func WithBaseURL(raw string) APIOption {
	return func(c *github.Client) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL %q: %w", raw, err)
		}
		c.BaseURL = u
		c.UploadURL = u
		return nil
	}
}

// ParseRepoSlug splits "owner/name" into its parts.
func ParseRepoSlug(slug string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid GitHub repository %q: expected owner/name", slug)
	}
	return owner, repo, nil
}

// NewAPIHost creates an APIHost for the repository slug ("owner/name")
// authenticated with token.
func NewAPIHost(token, slug string, opts ...APIOption) (*APIHost, error) {
	owner, repo, err := ParseRepoSlug(slug)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput, "cannot use the GitHub API backend", err)
	}

	client := github.NewClient(nil).WithAuthToken(token)
	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput, "cannot configure the GitHub API client", err)
		}
	}

	return &APIHost{client: client, owner: owner, repo: repo}, nil
}

// Create creates the release and then uploads every asset to it.
// Assets are uploaded in order; the first failure stops the upload and is
// returned, leaving the release in place with the assets uploaded so far.
func (h *APIHost) Create(ctx context.Context, rel Release) error {
	created, _, err := h.client.Repositories.CreateRelease(ctx, h.owner, h.repo, &github.RepositoryRelease{
		TagName: github.String(rel.Tag),
		Name:    github.String(rel.Title),
		Body:    github.String(rel.Notes),
	})
	if err != nil {
		return model.WrapCLIError(model.ExitReleaseFailed,
			fmt.Sprintf("failed to create GitHub release %s in %s/%s", rel.Tag, h.owner, h.repo), err)
	}

	for _, asset := range rel.Assets {
		if err := h.upload(ctx, created.GetID(), asset); err != nil {
			return model.WrapCLIError(model.ExitReleaseFailed,
				fmt.Sprintf("failed to upload %s to release %s", filepath.Base(asset), rel.Tag), err)
		}
	}
	return nil
}

func (h *APIHost) upload(ctx context.Context, releaseID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	opts := &github.UploadOptions{Name: filepath.Base(path)}
	if filepath.Ext(path) == ".zip" {
		// mime has no built-in entry for .zip on every platform.
		opts.MediaType = "application/zip"
	}

	_, _, err = h.client.Repositories.UploadReleaseAsset(ctx, h.owner, h.repo, releaseID, opts, f)
	return err
}
