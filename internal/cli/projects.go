package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/release-automation/internal/filter"
	"github.com/shinji-kodama/release-automation/internal/model"
)

// NewProjectsCommand creates the "projects" command, which lists the
// project table, optionally narrowed by --filter.
func NewProjectsCommand() *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List the projects taking part in a release",
		Long: `List the fixed project table: name, descriptor and container tag.

--filter takes the same CEL expression as the release command, so it can
be used to preview which projects a filtered release would touch.

Examples:
  release-automation projects
  release-automation projects --filter has_container
  release-automation projects --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			flt, err := filter.New(expr)
			if err != nil {
				return err
			}
			projects, err := flt.Apply(model.DefaultProjects((&model.ReleaseConfig{RootPath: root}).CodePath()))
			if err != nil {
				return err
			}
			return printProjects(cmd.OutOrStdout(), projects)
		},
	}

	cmd.Flags().StringVar(&expr, "filter", "", "CEL expression selecting projects")
	return cmd
}

func printProjects(w io.Writer, projects []model.ProjectEntry) error {
	if jsonOutput {
		if projects == nil {
			projects = []model.ProjectEntry{}
		}
		return printJSON(w, struct {
			Projects []model.ProjectEntry `json:"projects"`
		}{projects})
	}

	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects match the filter.")
		return nil
	}

	//	NAME                  DESCRIPTOR                    TAG
	//	SimpleHooks.Web       SimpleHooks.Web.csproj        web
	fmt.Fprintf(w, "%-22s %-30s %s\n", "NAME", "DESCRIPTOR", "TAG")
	for _, p := range projects {
		tag := p.ContainerTag
		if tag == "" {
			tag = "-"
		}
		fmt.Fprintf(w, "%-22s %-30s %s\n", p.Name, p.Descriptor, tag)
	}
	return nil
}
