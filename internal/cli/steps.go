package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// stepDescriptions documents each step for the steps command.
var stepDescriptions = map[model.StepName]string{
	model.StepReadme:     "Set the version line in README.md",
	model.StepAssemblies: "Set AssemblyVersion and FileVersion in every project",
	model.StepCommit:     "Commit the version bump and push it",
	model.StepPublish:    "Publish self-contained builds with dotnet",
	model.StepGitHub:     "Zip the builds and create the GitHub release",
	model.StepDocker:     "Build and push the Docker images",
}

// NewStepsCommand creates the "steps" command.
func NewStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the release steps in pipeline order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSteps(cmd.OutOrStdout())
		},
	}
}

type stepJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func printSteps(w io.Writer) error {
	if jsonOutput {
		steps := make([]stepJSON, 0, len(model.AllSteps()))
		for _, s := range model.AllSteps() {
			steps = append(steps, stepJSON{Name: s.String(), Description: stepDescriptions[s]})
		}
		return printJSON(w, struct {
			Steps []stepJSON `json:"steps"`
		}{steps})
	}

	for i, s := range model.AllSteps() {
		fmt.Fprintf(w, "%d. %-12s %s\n", i+1, s, stepDescriptions[s])
	}
	return nil
}
