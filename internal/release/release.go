// Package release creates the remote release entry on the release host.
//
// Two backends implement Host:
//   - GHHost shells out to the GitHub CLI (`gh release create`), which is
//     the default and needs nothing beyond an authenticated `gh`.
//   - APIHost talks to the GitHub REST API through go-github and uploads
//     each archive as a release asset.
//
// Neither backend retries. A failed creation is reported to the caller,
// which decides whether the run continues.
package release

import (
	"context"
	"fmt"
)

// Release describes the entry to create on the release host.
type Release struct {
	// Tag is the git tag the release points at (the bare version, e.g. "2.8.3").
	Tag string

	// Title is the human-readable release name.
	Title string

	// Notes is the release body.
	Notes string

	// Assets are absolute paths of files to attach.
	Assets []string
}

// ForVersion builds the standard release for version with the given assets.
func ForVersion(version string, assets []string) Release {
	return Release{
		Tag:    version,
		Title:  fmt.Sprintf("Release %s", version),
		Notes:  fmt.Sprintf("Release version %s", version),
		Assets: assets,
	}
}

// Host creates releases.
type Host interface {
	Create(ctx context.Context, rel Release) error
}
