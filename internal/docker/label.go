package docker

import (
	"sort"
	"time"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// Label keys stamped on every release image. The OCI annotation keys let
// registries and `docker inspect` show what was released; LabelProject
// ties an image back to its entry in the project table.
const (
	LabelOCIVersion = "org.opencontainers.image.version"
	LabelOCITitle   = "org.opencontainers.image.title"
	LabelOCICreated = "org.opencontainers.image.created"

	// LabelPrefix namespaces labels owned by this tool.
	LabelPrefix = "simplehooks.release."

	// LabelProject stores the project name (e.g., "SimpleHooks.Web").
	LabelProject = LabelPrefix + "project"

	// LabelContainerTag stores the tag prefix (e.g., "web").
	LabelContainerTag = LabelPrefix + "container-tag"
)

// BuildLabels returns the labels for a project's image. created is
// formatted as RFC3339 in UTC.
func BuildLabels(cfg *model.ReleaseConfig, p *model.ProjectEntry, created time.Time) map[string]string {
	return map[string]string{
		LabelOCIVersion:   cfg.Version,
		LabelOCITitle:     p.Name,
		LabelOCICreated:   created.UTC().Format(time.RFC3339),
		LabelProject:      p.Name,
		LabelContainerTag: p.ContainerTag,
	}
}

// labelArgs renders labels as sorted `--label key=value` CLI flags so the
// generated command line is deterministic.
func labelArgs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "--label", k+"="+labels[k])
	}
	return args
}
