package orchestrator

import (
	"github.com/shinji-kodama/release-automation/internal/model"
)

// Plan describes what a run would do. It is produced for --dry-run and
// never touches the filesystem or any external tool.
type Plan struct {
	Version  string        `json:"version"`
	Steps    []string      `json:"steps"`
	Projects []ProjectPlan `json:"projects"`
}

// ProjectPlan lists the artifacts derived for one project.
type ProjectPlan struct {
	Name       string   `json:"name"`
	Descriptor string   `json:"descriptor"`
	PublishDir string   `json:"publishDir"`
	Archive    string   `json:"archive"`
	Images     []string `json:"images,omitempty"`
}

// Plan returns the plan for running names, or the full pipeline when
// names is empty. Unknown names are kept so the caller can show them.
func (o *Orchestrator) Plan(names []string) Plan {
	steps := names
	if len(steps) == 0 {
		for _, s := range model.AllSteps() {
			steps = append(steps, s.String())
		}
	}

	plan := Plan{
		Version:  o.cfg.Version,
		Steps:    append([]string(nil), steps...),
		Projects: make([]ProjectPlan, 0, len(o.projects)),
	}
	for i := range o.projects {
		p := &o.projects[i]
		pp := ProjectPlan{
			Name:       p.Name,
			Descriptor: p.DescriptorPath(),
			PublishDir: model.PublishDir(&o.cfg, p),
			Archive:    model.ArchivePath(&o.cfg, p),
		}
		if p.HasContainer() {
			v, l := model.ImageRefs(&o.cfg, p)
			pp.Images = []string{v, l}
		}
		plan.Projects = append(plan.Projects, pp)
	}
	return plan
}
